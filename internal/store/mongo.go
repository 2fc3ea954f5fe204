package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/models"
)

// MongoStore implements DataStore on MongoDB. Counter bumps use $inc,
// read receipts use $addToSet and room creation uses $setOnInsert
// upserts, so every concurrent writer path relies on a store-level
// atomic primitive rather than read-modify-write.
type MongoStore struct {
	client   *mongo.Client
	rooms    *mongo.Collection
	messages *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(database)
	return &MongoStore{
		client:   client,
		rooms:    db.Collection("rooms"),
		messages: db.Collection("messages"),
	}, nil
}

// EnsureIndexes creates the indexes the read and write paths depend on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}}},
		{Keys: bson.D{{Key: "case_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "last_message_time", Value: -1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "seq", Value: -1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "read_by", Value: 1}}},
	})
	return err
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping checks the MongoDB connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// InsertRoom creates the room unless one with the same id already exists.
func (s *MongoStore) InsertRoom(ctx context.Context, room *models.Room) (bool, error) {
	onInsert := bson.M{
		"type":              room.Type,
		"participants":      room.Participants,
		"participant_names": room.ParticipantNames,
		"last_message":      room.LastMessage,
		"last_message_time": room.LastMessageTime,
		"unread_counts":     room.UnreadCounts,
		"seq":               room.Seq,
		"created_at":        room.CreatedAt,
		"created_by":        room.CreatedBy,
	}
	if room.CaseID != "" {
		onInsert["case_id"] = room.CaseID
		onInsert["case_name"] = room.CaseName
	}

	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": room.ID},
		bson.M{"$setOnInsert": onInsert},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		// Two first callers can race the upsert itself; the loser's
		// duplicate-key error just means the room already exists.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return res.UpsertedCount == 1, nil
}

// GetRoom fetches a room by id. Returns nil, nil when absent.
func (s *MongoStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// RoomsForUser returns rooms the user participates in, most recent
// activity first.
func (s *MongoStore) RoomsForUser(ctx context.Context, userID string, limit int) ([]models.Room, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.rooms.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rooms []models.Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// AllRooms returns every room. Used by the periodic unread sweep.
func (s *MongoStore) AllRooms(ctx context.Context) ([]models.Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rooms []models.Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// AddParticipant adds userID to the room. Adding an existing participant
// is a no-op; an existing unread counter survives re-adding.
func (s *MongoStore) AddParticipant(ctx context.Context, roomID, userID, name string) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{
			"$addToSet": bson.M{"participants": userID},
			"$set":      bson.M{"participant_names." + userID: name},
			"$max":      bson.M{"unread_counts." + userID: int64(0)},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveParticipant removes userID from the room. Removing an absent
// participant is a no-op.
func (s *MongoStore) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{
			"$pull":  bson.M{"participants": userID},
			"$unset": bson.M{"participant_names." + userID: "", "unread_counts." + userID: ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage claims the next order key, persists the message and
// updates the parent room's snapshot and unread counters.
func (s *MongoStore) AppendMessage(ctx context.Context, msg *models.Message) (*models.Room, error) {
	start := time.Now()
	defer func() {
		metrics.MongoLatency.Observe(time.Since(start).Seconds())
	}()

	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	// Claim both order keys in one atomic pipeline update: seq is the
	// room's high-water mark, and the timestamp is forced past the
	// previous last_message_time so concurrent appends inside the same
	// millisecond still come out strictly increasing. A missing room
	// means the append targets a deleted or never created conversation.
	now := time.Now().UnixMilli()
	claim := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"seq":               bson.M{"$add": bson.A{"$seq", 1}},
		"last_message_time": bson.M{"$max": bson.A{now, bson.M{"$add": bson.A{"$last_message_time", int64(1)}}}},
	}}}}

	var room models.Room
	err := s.rooms.FindOneAndUpdate(ctx, bson.M{"_id": msg.RoomID}, claim, after).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	msg.Seq = room.Seq
	msg.Timestamp = room.LastMessageTime

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return nil, err
	}

	// The preview only advances: a writer whose claim lost to a later
	// append must not overwrite the newer snapshot, so the preview is
	// kept unless this message still carries the room's latest timestamp.
	set := bson.M{
		"last_message": bson.M{"$cond": bson.A{
			bson.M{"$lte": bson.A{"$last_message_time", msg.Timestamp}},
			msg.PreviewText(80),
			"$last_message",
		}},
	}
	for _, p := range room.Participants {
		if p != msg.SenderID {
			set["unread_counts."+p] = bson.M{"$add": bson.A{
				bson.M{"$ifNull": bson.A{"$unread_counts." + p, int64(0)}},
				int64(1),
			}}
		}
	}

	err = s.rooms.FindOneAndUpdate(ctx, bson.M{"_id": msg.RoomID},
		mongo.Pipeline{{{Key: "$set", Value: set}}}, after).Decode(&room)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// MessageWindow returns the most recent limit messages in ascending seq
// order.
func (s *MongoStore) MessageWindow(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	start := time.Now()
	defer func() {
		metrics.MongoLatency.Observe(time.Since(start).Seconds())
	}()

	cur, err := s.messages.Find(ctx,
		bson.M{"room_id": roomID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: -1}}).SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var msgs []models.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	// Fetched newest-first; flip to ascending.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessage fetches one message by id. Returns nil, nil when absent.
func (s *MongoStore) GetMessage(ctx context.Context, roomID, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.messages.FindOne(ctx, bson.M{"_id": messageID, "room_id": roomID}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkAllRead unions userID into the readBy set of every unacknowledged
// message in the room. $addToSet makes retries and concurrent readers
// harmless, and filtering on read_by instead of an id list covers the
// whole backlog in one UpdateMany.
func (s *MongoStore) MarkAllRead(ctx context.Context, roomID, userID string) error {
	_, err := s.messages.UpdateMany(ctx,
		bson.M{"room_id": roomID, "read_by": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	return err
}

// CountUnread counts messages in the room not yet acknowledged by userID.
func (s *MongoStore) CountUnread(ctx context.Context, roomID, userID string) (int64, error) {
	return s.messages.CountDocuments(ctx, bson.M{
		"room_id": roomID,
		"read_by": bson.M{"$ne": userID},
	})
}

// SetUnreadCount overwrites one participant's unread counter.
func (s *MongoStore) SetUnreadCount(ctx context.Context, roomID, userID string, n int64) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"unread_counts." + userID: n}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
