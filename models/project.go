package models

type Project struct {
	ID          int64    `bson:"_id" json:"id"`
	Title       string   `bson:"title" json:"title"`
	Description string   `bson:"description" json:"description"`
	Owner       string   `bson:"owner" json:"owner"` // owner email
	Members     []string `bson:"members" json:"members"`
	CreatedAt   int64    `bson:"createdAt" json:"createdAt"`
}
