package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"studo/models"
)

type SendMessageRequest struct {
	Receiver string `json:"receiver" binding:"required,email"`
	Content  string `json:"content" binding:"required"`
	Token    string `json:"token"`
}

// SendMessage persists the message, publishes it to the delivery channel and
// returns the stored record to the sender. The direct response is what the
// sender's client reconciles its optimistic entry against; the receiver gets
// the copy fanned out by the hub. If the insert fails nothing is published.
func SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender := c.GetString("email")

	message := models.Message{
		Sender:    sender,
		Receiver:  req.Receiver,
		Content:   req.Content,
		Timestamp: models.NowMillis(time.Now()),
		Token:     req.Token,
	}

	if err := messageStore.Insert(c.Request.Context(), &message); err != nil {
		log.Printf("SendMessage insert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	publisher.Publish(message)

	if !publisher.Connected(message.Receiver) {
		go notifyOffline(message)
	}

	c.JSON(http.StatusCreated, message)
}

// GetMessages returns the full history between the caller and one peer, in
// storage order, both directions.
func GetMessages(c *gin.Context) {
	self := c.GetString("email")
	peer := c.Param("peer")
	if peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Peer is required"})
		return
	}

	messages, err := messageStore.ListBetween(c.Request.Context(), self, peer)
	if err != nil {
		log.Printf("GetMessages error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	if messages == nil {
		messages = []models.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// notifyOffline sends a web-push notification to a receiver with no live
// subscription. Failures are only logged, the message is already delivered
// durably.
func notifyOffline(message models.Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic in push notification: %v", r)
		}
	}()

	payload, err := json.Marshal(map[string]string{
		"title": message.Sender + " sent you a message",
		"body":  message.Content,
	})
	if err != nil {
		return
	}

	if err := sendPushTo(message.Receiver, payload); err != nil {
		log.Printf("push to %s failed: %v", message.Receiver, err)
	}
}
