package repository

import (
	"context"
	"errors"
	"os"
	"time"

	"main/model"
	"main/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrChatNotLinked = errors.New("chat is not linked to a user")

type ChatLinksRepo struct {
	MongoCollection *mongo.Collection
}

// Retrieves MongoDB collection for Telegram chat-to-user bindings
func GetChatLinksRepo(client *mongo.Client) *ChatLinksRepo {
	dbName := os.Getenv("MONGO_DB")
	collectionName := os.Getenv("CHAT_LINKS_COLLECTION")
	return &ChatLinksRepo{
		MongoCollection: client.Database(dbName).Collection(collectionName),
	}
}

// Upserts the binding: re-linking an already bound chat replaces the user
func (r *ChatLinksRepo) LinkChat(ctx context.Context, link *model.ChatLink) error {
	timer := utils.TrackDBOperation("upsert", "chat_links")
	defer timer.ObserveDuration()

	if link.LinkedAt.IsZero() {
		link.LinkedAt = time.Now()
	}

	_, err := r.MongoCollection.UpdateOne(ctx,
		bson.M{"_id": link.ChatID},
		bson.M{"$set": bson.M{
			"user_id":   link.UserID,
			"username":  link.Username,
			"linked_at": link.LinkedAt,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		utils.TrackError("database", "chat_link_failed")
		return err
	}

	return nil
}

// Resolves an inbound chat to its previously linked user
func (r *ChatLinksRepo) GetLink(ctx context.Context, chatID int64) (*model.ChatLink, error) {
	timer := utils.TrackDBOperation("find_one", "chat_links")
	defer timer.ObserveDuration()

	var link model.ChatLink
	err := r.MongoCollection.FindOne(ctx, bson.M{"_id": chatID}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChatNotLinked
		}
		utils.TrackError("database", "chat_link_fetch_failed")
		return nil, err
	}
	return &link, nil
}

// Lists every binding; the digest job walks these to fan out summaries
func (r *ChatLinksRepo) ListLinks(ctx context.Context) ([]*model.ChatLink, error) {
	timer := utils.TrackDBOperation("find", "chat_links")
	defer timer.ObserveDuration()

	var links []*model.ChatLink
	cursor, err := r.MongoCollection.Find(ctx, bson.M{})
	if err != nil {
		utils.TrackError("database", "chat_links_fetch_failed")
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// Finds the linked chat for a user, if any
func (r *ChatLinksRepo) GetLinkByUser(ctx context.Context, userID string) (*model.ChatLink, error) {
	timer := utils.TrackDBOperation("find_one", "chat_links")
	defer timer.ObserveDuration()

	var link model.ChatLink
	err := r.MongoCollection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrChatNotLinked
		}
		return nil, err
	}
	return &link, nil
}
