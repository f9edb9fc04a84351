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

type TasksRepo struct {
	MongoCollection *mongo.Collection
}

// Retrieves MongoDB collection for tasks
func GetTasksRepo(client *mongo.Client) *TasksRepo {
	dbName := os.Getenv("MONGO_DB")
	collectionName := os.Getenv("TASKS_COLLECTION")
	return &TasksRepo{
		MongoCollection: client.Database(dbName).Collection(collectionName),
	}
}

// Add a new task (following the model) into the database
func (r *TasksRepo) CreateTask(ctx context.Context, task *model.Task) error {
	timer := utils.TrackDBOperation("insert", "tasks")
	defer timer.ObserveDuration()

	if task.UserID == "" {
		utils.TrackError("database", "missing_user_id")
		return errors.New("user ID is required")
	}

	_, err := r.MongoCollection.InsertOne(ctx, task)
	if err != nil {
		utils.TrackError("database", "task_creation_failed")
		return err
	}

	return nil
}

// Persists a batch of tasks as one durable write
func (r *TasksRepo) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	timer := utils.TrackDBOperation("insert_many", "tasks")
	defer timer.ObserveDuration()

	if len(tasks) == 0 {
		return nil
	}

	docs := make([]interface{}, len(tasks))
	for i, task := range tasks {
		if task.UserID == "" {
			utils.TrackError("database", "missing_user_id")
			return errors.New("user ID is required")
		}
		docs[i] = task
	}

	// Ordered insert: either the whole batch lands or the error aborts it.
	_, err := r.MongoCollection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		utils.TrackError("database", "task_batch_creation_failed")
		return err
	}

	return nil
}

// Retrieves all tasks based on the User ID, newest first
func (r *TasksRepo) GetUserTasks(ctx context.Context, userID string) ([]*model.Task, error) {
	timer := utils.TrackDBOperation("find", "tasks")
	defer timer.ObserveDuration()

	var tasks []*model.Task
	cursor, err := r.MongoCollection.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		utils.TrackError("database", "task_fetch_failed")
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &tasks); err != nil {
		utils.TrackError("database", "task_decode_failed")
		return nil, err
	}

	for _, task := range tasks {
		task.Normalize()
	}
	return tasks, nil
}

// Retrieves a single task scoped to its owner
func (r *TasksRepo) GetTaskByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	timer := utils.TrackDBOperation("find_one", "tasks")
	defer timer.ObserveDuration()

	var task model.Task
	err := r.MongoCollection.FindOne(ctx, bson.M{
		"_id":     taskID,
		"user_id": userID,
	}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			utils.TrackError("database", "task_not_found")
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	task.Normalize()
	return &task, nil
}

// Applies a partial update to a specific task
func (r *TasksRepo) UpdateTask(ctx context.Context, userID, taskID string, patch Patch) error {
	timer := utils.TrackDBOperation("update", "tasks")
	defer timer.ObserveDuration()

	set := bson.M{"updated_at": time.Now()}
	unset := bson.M{}

	if patch.Text != nil {
		set["text"] = *patch.Text
	}
	if patch.Note != nil {
		set["note"] = *patch.Note
	}
	if patch.Status != nil {
		set["status"] = *patch.Status
		// Keep the legacy boolean coherent for older readers.
		set["complete"] = *patch.Status == model.StatusCompleted
	}
	if patch.IsUrgent != nil {
		set["is_urgent"] = *patch.IsUrgent
	}
	if patch.RecurrenceRule != nil {
		set["recurrence_rule"] = *patch.RecurrenceRule
	}
	if patch.ReminderSent != nil {
		set["reminder_sent"] = *patch.ReminderSent
	}
	if patch.ClearDueDate {
		unset["due_date"] = ""
	} else if patch.DueDate != nil {
		set["due_date"] = *patch.DueDate
	}
	if patch.ClearCalendarEventID {
		unset["google_calendar_event_id"] = ""
	} else if patch.GoogleCalendarEventID != nil {
		set["google_calendar_event_id"] = *patch.GoogleCalendarEventID
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.MongoCollection.UpdateOne(ctx, bson.M{
		"_id":     taskID,
		"user_id": userID,
	}, update)
	if err != nil {
		utils.TrackError("database", "task_update_failed")
		return err
	}

	if result.MatchedCount == 0 {
		utils.TrackError("database", "task_not_found")
		return ErrTaskNotFound
	}

	return nil
}

// Removes a specific task from database
func (r *TasksRepo) DeleteTask(ctx context.Context, userID, taskID string) error {
	timer := utils.TrackDBOperation("delete", "tasks")
	defer timer.ObserveDuration()

	result, err := r.MongoCollection.DeleteOne(ctx, bson.M{
		"_id":     taskID,
		"user_id": userID,
	})
	if err != nil {
		utils.TrackError("database", "task_deletion_failed")
		return err
	}

	if result.DeletedCount == 0 {
		utils.TrackError("database", "task_not_found")
		return ErrTaskNotFound
	}

	return nil
}

// Removes every subtask of a parent; the store itself has no cascade
func (r *TasksRepo) DeleteByParent(ctx context.Context, userID, parentID string) (int, error) {
	timer := utils.TrackDBOperation("delete_many", "tasks")
	defer timer.ObserveDuration()

	result, err := r.MongoCollection.DeleteMany(ctx, bson.M{
		"user_id":   userID,
		"parent_id": parentID,
	})
	if err != nil {
		utils.TrackError("database", "subtask_deletion_failed")
		return 0, err
	}

	return int(result.DeletedCount), nil
}

// Counts the number of tasks for a user
func (r *TasksRepo) CountUserTasks(ctx context.Context, userID string) (int, error) {
	count, err := r.MongoCollection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// Gets non-completed tasks due inside [from, to), ordered by due time
func (r *TasksRepo) FindScheduled(ctx context.Context, userID string, from, to time.Time) ([]*model.Task, error) {
	timer := utils.TrackDBOperation("find", "scheduled_tasks")
	defer timer.ObserveDuration()

	filter := bson.M{
		"user_id": userID,
		"status":  bson.M{"$ne": model.StatusCompleted},
		"due_date": bson.M{
			"$gte": from,
			"$lt":  to,
		},
	}

	var tasks []*model.Task
	cursor, err := r.MongoCollection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}}))
	if err != nil {
		utils.TrackError("database", "scheduled_fetch_failed")
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		task.Normalize()
	}
	return tasks, nil
}

// Gets all tasks for a user matching a status
func (r *TasksRepo) FindByStatus(ctx context.Context, userID string, status model.TaskStatus) ([]*model.Task, error) {
	timer := utils.TrackDBOperation("find", "tasks_by_status")
	defer timer.ObserveDuration()

	filter := bson.M{
		"user_id": userID,
		"status":  status,
	}
	// Older documents may predate the status field; fold the legacy boolean
	// into the filter instead of scanning the whole collection.
	switch status {
	case model.StatusCompleted:
		filter = bson.M{
			"user_id": userID,
			"$or": []bson.M{
				{"status": model.StatusCompleted},
				{"status": bson.M{"$exists": false}, "complete": true},
			},
		}
	case model.StatusTodo:
		filter = bson.M{
			"user_id": userID,
			"$or": []bson.M{
				{"status": model.StatusTodo},
				{"status": bson.M{"$exists": false}, "complete": bson.M{"$ne": true}},
			},
		}
	}

	var tasks []*model.Task
	cursor, err := r.MongoCollection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		utils.TrackError("database", "status_fetch_failed")
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		task.Normalize()
	}
	return tasks, nil
}
