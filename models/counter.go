package models

// Counter backs the auto-incrementing integer IDs for users, projects and
// tasks. One document per sequence name.
type Counter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}
