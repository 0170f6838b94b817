package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"studo/database"
	"studo/models"
)

type CreateProjectRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

func projectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return 0, false
	}
	return id, true
}

// memberFilter matches projects the given user owns or belongs to.
func memberFilter(email string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"owner": email},
		bson.M{"members": email},
	}}
}

func CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	owner := c.GetString("email")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := database.NextSequence(ctx, "projects")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate project ID"})
		return
	}

	members := req.Members
	if members == nil {
		members = []string{}
	}

	project := models.Project{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Owner:       owner,
		Members:     members,
		CreatedAt:   time.Now().Unix(),
	}

	if _, err := database.Projects.InsertOne(ctx, project); err != nil {
		log.Printf("CreateProject insert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, project)
}

func ListProjects(c *gin.Context) {
	email := c.GetString("email")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := database.Projects.Find(ctx, memberFilter(email))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
		return
	}
	defer cursor.Close(ctx)

	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode projects"})
		return
	}

	if projects == nil {
		projects = []models.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

func GetProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	email := c.GetString("email")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var project models.Project
	err := database.Projects.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if !projectAccessible(project, email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to project"})
		return
	}

	c.JSON(http.StatusOK, project)
}

type UpdateProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

func UpdateProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	email := c.GetString("email")

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := bson.M{}
	if req.Title != "" {
		update["title"] = req.Title
	}
	if req.Description != "" {
		update["description"] = req.Description
	}
	if req.Members != nil {
		update["members"] = req.Members
	}
	if len(update) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Only the owner can change a project.
	res, err := database.Projects.UpdateOne(ctx, bson.M{"_id": id, "owner": email}, bson.M{"$set": update})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}
	if res.MatchedCount == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Project not found or not owned by you"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project updated"})
}

func DeleteProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	email := c.GetString("email")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := database.Projects.DeleteOne(ctx, bson.M{"_id": id, "owner": email})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}
	if res.DeletedCount == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Project not found or not owned by you"})
		return
	}

	// Tasks of a deleted project go with it.
	if _, err := database.Tasks.DeleteMany(ctx, bson.M{"projectId": id}); err != nil {
		log.Printf("DeleteProject task cleanup error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

func projectAccessible(project models.Project, email string) bool {
	if project.Owner == email {
		return true
	}
	for _, m := range project.Members {
		if m == email {
			return true
		}
	}
	return false
}
