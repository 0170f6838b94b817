package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"studo/database"
	"studo/models"
)

var googleOAuthConfig *oauth2.Config

func googleConfig() *oauth2.Config {
	if googleOAuthConfig == nil {
		googleOAuthConfig = &oauth2.Config{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}
	return googleOAuthConfig
}

type googleUserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func GetGoogleAuthURL(c *gin.Context) {
	cfg := googleConfig()
	if cfg.ClientID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google sign-in not configured"})
		return
	}

	url := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOnline)
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func GoogleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing authorization code"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	token, err := googleConfig().Exchange(ctx, code)
	if err != nil {
		log.Printf("google exchange error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	info, err := fetchGoogleUserInfo(ctx, token.AccessToken)
	if err != nil {
		log.Printf("google userinfo error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to fetch Google profile"})
		return
	}

	finishGoogleSignIn(c, info)
}

// GoogleAuthWithCredential signs in with an access token the browser already
// obtained from Google.
func GoogleAuthWithCredential(c *gin.Context) {
	var req struct {
		AccessToken string `json:"accessToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := fetchGoogleUserInfo(ctx, req.AccessToken)
	if err != nil {
		log.Printf("google userinfo error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Google credential"})
		return
	}

	finishGoogleSignIn(c, info)
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, fmt.Errorf("userinfo has no email")
	}
	return &info, nil
}

// finishGoogleSignIn finds or creates the account for the Google identity and
// issues the session token. New Google accounts default to the student role.
func finishGoogleSignIn(c *gin.Context, info *googleUserInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var user models.User
	err := database.Users.FindOne(ctx, bson.M{"email": info.Email}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		id, seqErr := database.NextSequence(ctx, "users")
		if seqErr != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to allocate user ID"})
			return
		}

		user = models.User{
			ID:           id,
			Username:     fmt.Sprintf("user%d", id),
			Email:        info.Email,
			Name:         info.Name,
			AuthProvider: "google",
			Role:         models.RoleStudent,
			Avatar:       info.Picture,
			CreatedAt:    time.Now().Unix(),
		}
		if _, err := database.Users.InsertOne(ctx, user); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	tokenString, err := issueToken(user.Email, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": tokenString,
		"user":  user,
	})
}
