// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/safesave/lib/store"
)

// Database and collection names.
const (
	Database = "safesave"
	groupCol = "groups"
	watchCol = "watch"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c  *mgo.Client
	db *mgo.Database
}

// walletsIdx is the unique index keeping every wallet in at most one group.
const walletsIdx = "wallets_unique"

// mongoGroup is the document of a group. Wallets holds its members and pending requests.
type mongoGroup struct {
	store.Group `bson:",inline"`
	Wallets     []string `bson:"wallets"`
}

// mongoWatch is the document of a watcher state, keyed by contract name.
type mongoWatch struct {
	Contract         string `bson:"_id"`
	store.WatchState `bson:",inline"`
}

// New returns a Mongo client connection to the specified MongoDB database uri and creates the unique indexes of the
// groups collection.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c, db: c.Database(Database)}

	_, err = m.db.Collection(groupCol).Indexes().CreateMany(ctx, []mgo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true).
			SetCollation(&options.Collation{Locale: "en", Strength: 2})},
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "wallets", Value: 1}}, Options: options.Index().SetUnique(true).SetName(walletsIdx).
			SetPartialFilterExpression(bson.M{"wallets.0": bson.M{"$exists": true}})},
	})
	if err != nil {
		_ = c.Disconnect(context.Background())

		return nil, fmt.Errorf("cannot create group indexes: %w", err)
	}

	return m, nil
}

// Close will close a database connection. Must be called at termination time.
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// CreateGroup inserts g, filling its id, code and timestamps.
func (m *Mongo) CreateGroup(ctx context.Context, g *store.Group) error {
	g.Prepare(time.Now().UTC())

	if _, err := m.db.Collection(groupCol).InsertOne(ctx, mongoGroup{Group: *g, Wallets: g.Wallets()}); err != nil {
		return wrap("could not insert group in db", err)
	}

	return nil
}

// Groups returns all the groups sorted by creation time.
func (m *Mongo) Groups(ctx context.Context) ([]store.Group, error) {
	cur, err := m.db.Collection(groupCol).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error getting groups: %w", err)
	}

	gs := []store.Group{}
	if err = cur.All(ctx, &gs); err != nil {
		return nil, fmt.Errorf("error decoding groups: %w", err)
	}

	return gs, nil
}

// Group returns the group with the given id.
func (m *Mongo) Group(ctx context.Context, id string) (store.Group, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

// GroupByCode returns the group with the given join code, case insensitive.
func (m *Mongo) GroupByCode(ctx context.Context, code string) (store.Group, error) {
	return m.findOne(ctx, bson.M{"code": strings.ToUpper(code)})
}

// GroupOf returns the group wallet is a member of or has asked to join.
func (m *Mongo) GroupOf(ctx context.Context, wallet string) (store.Group, error) {
	return m.findOne(ctx, bson.M{"wallets": wallet})
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (g store.Group, err error) {
	if err = m.db.Collection(groupCol).FindOne(ctx, filter).Decode(&g); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return
}

// UpdateGroup writes the settings of g and reloads it.
func (m *Mongo) UpdateGroup(ctx context.Context, g *store.Group) error {
	return m.modify(ctx, bson.M{"_id": g.ID}, bson.M{"$set": bson.M{
		"name":           g.Name,
		"code":           g.Code,
		"savingsGoal":    g.SavingsGoal,
		"currentSavings": g.CurrentSavings,
		"isActive":       g.IsActive,
		"updatedAt":      time.Now().UTC(),
	}}, g)
}

// RequestJoin adds wallet to the pending requests of the group with the given join code. The unique wallets index
// rejects wallets already in another group.
func (m *Mongo) RequestJoin(ctx context.Context, code, wallet string) (g store.Group, err error) {
	code = strings.ToUpper(code)

	err = m.modify(ctx, bson.M{"code": code, "wallets": bson.M{"$ne": wallet}}, bson.M{
		"$push": bson.M{"pending": wallet, "wallets": wallet},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}, &g)
	if errors.Is(err, store.ErrDataNotFound) {
		// either the code is wrong or wallet is already in this group
		if _, errF := m.GroupByCode(ctx, code); errF == nil {
			err = store.ErrInGroup
		}
	}

	return g, err
}

// Approve moves the pending request of wallet to the members.
func (m *Mongo) Approve(ctx context.Context, id, wallet string) (g store.Group, err error) {
	err = m.modify(ctx, bson.M{"_id": id, "pending": wallet}, bson.M{
		"$pull": bson.M{"pending": wallet},
		"$push": bson.M{"members": wallet},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}, &g)

	return g, m.notPending(ctx, id, err)
}

// Reject drops the pending request of wallet.
func (m *Mongo) Reject(ctx context.Context, id, wallet string) (g store.Group, err error) {
	err = m.modify(ctx, bson.M{"_id": id, "pending": wallet}, bson.M{
		"$pull": bson.M{"pending": wallet, "wallets": wallet},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}, &g)

	return g, m.notPending(ctx, id, err)
}

// RemoveMember drops wallet from the members and pending requests of the group.
func (m *Mongo) RemoveMember(ctx context.Context, id, wallet string) error {
	res, err := m.db.Collection(groupCol).UpdateOne(ctx, bson.M{"_id": id, "wallets": wallet}, bson.M{
		"$pull": bson.M{"members": wallet, "pending": wallet, "wallets": wallet},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return wrap("could not update group", err)
	}

	if res.MatchedCount != 1 {
		return store.ErrDataNotFound
	}

	return nil
}

// modify applies update to the group matching filter and decodes the updated group into g.
func (m *Mongo) modify(ctx context.Context, filter, update bson.M, g *store.Group) error {
	err := m.db.Collection(groupCol).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(g)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.ErrDataNotFound
	}

	if err != nil {
		return wrap("could not update group", err)
	}

	return nil
}

// notPending tells a missing group from a missing request after a filtered update.
func (m *Mongo) notPending(ctx context.Context, id string, err error) error {
	if !errors.Is(err, store.ErrDataNotFound) {
		return err
	}

	if _, errG := m.Group(ctx, id); errG == nil {
		return store.ErrNotPending
	}

	return err
}

// DeleteGroup removes the group with the given id.
func (m *Mongo) DeleteGroup(ctx context.Context, id string) error {
	res, err := m.db.Collection(groupCol).DeleteOne(ctx, bson.M{"_id": id})
	if err == nil && res.DeletedCount != 1 {
		err = store.ErrDataNotFound
	}

	return err
}

// LoadWatch loads from db the watcher state for the indicated contract.
func (m *Mongo) LoadWatch(ctx context.Context, contract string) (store.WatchState, error) {
	var mw mongoWatch

	err := m.db.Collection(watchCol).FindOne(ctx, bson.M{"_id": contract}).Decode(&mw)
	if errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return mw.WatchState, err
}

// SaveWatch saves to db the watcher state for the indicated contract.
func (m *Mongo) SaveWatch(ctx context.Context, contract string, ws store.WatchState) (err error) {
	_, err = m.db.Collection(watchCol).UpdateOne(ctx,
		bson.M{"_id": contract}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "address", Value: ws.Address},
					{Key: "height", Value: ws.Height},
					{Key: "tips", Value: ws.Tips},
					{Key: "tipIdx", Value: ws.TipIdx},
					{Key: "utxos", Value: ws.Utxos},
				},
			},
		},
		options.Update().SetUpsert(true))

	return
}

// DeleteWatch deletes from db the watcher state for the indicated contract.
func (m *Mongo) DeleteWatch(ctx context.Context, contract string) (err error) {
	_, err = m.db.Collection(watchCol).DeleteOne(ctx, bson.M{"_id": contract})

	return
}

func wrap(msg string, err error) error {
	if mgo.IsDuplicateKeyError(err) {
		if strings.Contains(err.Error(), walletsIdx) {
			return store.ErrInGroup
		}

		return store.ErrDuplicate
	}

	return fmt.Errorf("%s: %w", msg, err)
}
