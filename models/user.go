package models

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// User is a single document in the users collection. Email is the canonical
// identity everywhere (messaging, project membership); Username is a display
// and login attribute only.
type User struct {
	ID           int64   `bson:"_id" json:"id"`
	Username     string  `bson:"username" json:"username"`
	Email        string  `bson:"email" json:"email"`
	Name         string  `bson:"name" json:"name"`
	PasswordHash *string `bson:"passwordHash,omitempty" json:"-"`
	AuthProvider string  `bson:"authProvider" json:"-"` // email, google
	Role         string  `bson:"role" json:"role"`
	Avatar       string  `bson:"avatar" json:"avatar"`
	CreatedAt    int64   `bson:"createdAt" json:"createdAt"`
}
