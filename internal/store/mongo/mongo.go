// Package mongo implements store.Store on MongoDB, keeping conversations and
// messages as documents in two collections.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vovakirdan/marketchat-server/internal/store"
)

const (
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

type conversationDoc struct {
	ID            string     `bson:"_id"`
	Participants  []string   `bson:"participants"`
	LastMessage   string     `bson:"lastMessage"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt"`
}

type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation"`
	SenderID       string    `bson:"sender"`
	Content        string    `bson:"content"`
	Read           bool      `bson:"read"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client        *mongo.Client
	conversations *mongo.Collection
	messages      *mongo.Collection
}

// New connects to uri, verifies the primary is reachable and ensures indexes.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "participants", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create conversations index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateConversation inserts a new conversation document.
func (s *MongoStore) CreateConversation(ctx context.Context, participants []string) (*store.Conversation, error) {
	doc := conversationDoc{
		ID:           uuid.NewString(),
		Participants: participants,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return doc.toStore(), nil
}

// GetConversation finds a conversation by id.
func (s *MongoStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	var doc conversationDoc
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return doc.toStore(), nil
}

// ListConversations returns the user's conversations, most recent activity first.
func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "lastMessageAt", Value: -1},
		{Key: "createdAt", Value: -1},
	})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}

	var docs []conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	convs := make([]*store.Conversation, 0, len(docs))
	for i := range docs {
		convs = append(convs, docs[i].toStore())
	}
	return convs, nil
}

// UpdateConversationSummary sets lastMessage and lastMessageAt.
func (s *MongoStore) UpdateConversationSummary(ctx context.Context, id, lastMessage string, at time.Time) error {
	res, err := s.conversations.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"lastMessage": lastMessage, "lastMessageAt": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// CreateMessage inserts a message document.
func (s *MongoStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	doc := messageDoc{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt.UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// MarkConversationRead flips read on every unread message from other senders.
func (s *MongoStore) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{
			"conversation": conversationID,
			"sender":       bson.M{"$ne": readerID},
			"read":         false,
		},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.ModifiedCount, nil
}

// ListMessages returns up to limit messages, newest first.
func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, limit int, before *time.Time) ([]*store.Message, error) {
	filter := bson.M{"conversation": conversationID}
	if before != nil {
		filter["createdAt"] = bson.M{"$lt": before.UTC()}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]*store.Message, 0, len(docs))
	for _, d := range docs {
		messages = append(messages, &store.Message{
			ID:             d.ID,
			ConversationID: d.ConversationID,
			SenderID:       d.SenderID,
			Content:        d.Content,
			Read:           d.Read,
			CreatedAt:      d.CreatedAt,
		})
	}
	return messages, nil
}

func (d *conversationDoc) toStore() *store.Conversation {
	return &store.Conversation{
		ID:            d.ID,
		Participants:  d.Participants,
		LastMessage:   d.LastMessage,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
	}
}
