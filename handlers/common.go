package handlers

import (
	"os"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"studo/middleware"
	"studo/models"
	"studo/store"
)

const fallbackAvatar = "https://upload.wikimedia.org/wikipedia/commons/8/89/Portrait_Placeholder.png"

// MessagePublisher is implemented by ws.Hub. Connected lets the send
// pipeline skip the web-push fallback for receivers with a live
// subscription.
type MessagePublisher interface {
	Publish(message models.Message)
	Connected(email string) bool
}

var messageStore store.MessageStore
var publisher MessagePublisher
var vapidPrivateKey string

// PushSubscription associates a browser push endpoint with a user identity.
type PushSubscription struct {
	ID     primitive.ObjectID   `bson:"_id,omitempty"`
	Email  string               `bson:"email"`
	Sub    webpush.Subscription `bson:"sub"`
}

// SetMessageStore wires the message persistence used by the message
// handlers. Tests inject store.Memory here.
func SetMessageStore(s store.MessageStore) {
	messageStore = s
}

// SetPublisher wires the delivery channel used after a successful send.
func SetPublisher(p MessagePublisher) {
	publisher = p
}

// SetVAPIDPrivateKey sets the key used for web-push fallbacks.
func SetVAPIDPrivateKey(key string) {
	vapidPrivateKey = key
}

func issueToken(email, role string) (string, error) {
	expirationTime := time.Now().Add(24 * time.Hour)
	claims := &middleware.Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}
