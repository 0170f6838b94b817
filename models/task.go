package models

const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

type Task struct {
	ID          int64  `bson:"_id" json:"id"`
	ProjectID   int64  `bson:"projectId" json:"projectId"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	Status      string `bson:"status" json:"status"` // todo, in_progress, done
	Assignee    string `bson:"assignee" json:"assignee"`
	DueDate     int64  `bson:"dueDate" json:"dueDate"` // epoch millis, 0 = none
	CreatedBy   string `bson:"createdBy" json:"createdBy"`
	CreatedAt   int64  `bson:"createdAt" json:"createdAt"`
}
