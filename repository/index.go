package repository

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func SetupIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tasksCollection := db.Collection(os.Getenv("TASKS_COLLECTION"))
	linksCollection := db.Collection(os.Getenv("CHAT_LINKS_COLLECTION"))

	taskIndexes := []mongo.IndexModel{
		// Basic user-date index
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().
				SetName("user_tasks_date").
				SetUnique(false),
		},
		// Due-window queries (schedule command, reminder scans)
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "due_date", Value: 1},
			},
			Options: options.Index().
				SetName("user_tasks_due").
				SetUnique(false),
		},
		// Status filter queries
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().
				SetName("user_tasks_status").
				SetUnique(false),
		},
		// Cascade deletes walk the subtask back-references
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "parent_id", Value: 1},
			},
			Options: options.Index().
				SetName("user_subtasks").
				SetUnique(false),
		},
	}

	linkIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName("link_user_id"),
		},
	}

	if _, err := tasksCollection.Indexes().CreateMany(ctx, taskIndexes); err != nil {
		return fmt.Errorf("failed to create task indexes: %w", err)
	}

	if _, err := linksCollection.Indexes().CreateMany(ctx, linkIndexes); err != nil {
		return fmt.Errorf("failed to create chat link indexes: %w", err)
	}

	log.Println("Database indexes created successfully")
	return nil
}
