package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"TribalRealms/internal/world/app/port"
	"TribalRealms/internal/world/entity"
	"TribalRealms/internal/world/errs"
	"TribalRealms/internal/world/infra/persistence/model"
)

const (
	villageCollection = "village"
	eventCollection   = "scheduled_event"
	armyCollection    = "army"
	reportCollection  = "battle_report"
)

const (
	OpEnsureIndexes = "repo.world.mongo.EnsureIndexes"
	OpLoadVillage   = "repo.world.mongo.LoadVillage"
	OpListVillages  = "repo.world.mongo.ListVillages"
	OpLoadArmy      = "repo.world.mongo.LoadArmy"
	OpLoadEvents    = "repo.world.mongo.LoadEvents"
	OpListReports   = "repo.world.mongo.ListReports"
	OpCommit        = "repo.world.mongo.Commit"
	OpDeleteEvents  = "repo.world.mongo.DeleteEvents"
)

var errNilCollection = errors.New("mongodb world collection is nil")

// WorldRepository 一次 Commit 是一个多文档事务，部署上需要副本集。
type WorldRepository struct {
	client   *mongo.Client
	villages *mongo.Collection
	events   *mongo.Collection
	armies   *mongo.Collection
	reports  *mongo.Collection
}

var _ port.WorldRepository = (*WorldRepository)(nil)

func NewWorldRepository(db *mongo.Database) *WorldRepository {
	if db == nil {
		return &WorldRepository{}
	}
	return &WorldRepository{
		client:   db.Client(),
		villages: db.Collection(villageCollection),
		events:   db.Collection(eventCollection),
		armies:   db.Collection(armyCollection),
		reports:  db.Collection(reportCollection),
	}
}

func (r *WorldRepository) ready() error {
	if r == nil || r.villages == nil {
		return errNilCollection
	}
	return nil
}

// EnsureIndexes 坐标唯一索引和查询用索引。
func (r *WorldRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return errs.Wrap(OpEnsureIndexes, errs.KindInfra, err, nil)
	}
	_, err := r.villages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "world_id", Value: 1}, {Key: "x", Value: 1}, {Key: "y", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uk_village_coord"),
	})
	if err != nil {
		return errs.Wrap(OpEnsureIndexes, errs.KindInfra, err, nil)
	}
	_, err = r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "world_id", Value: 1}, {Key: "due", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return errs.Wrap(OpEnsureIndexes, errs.KindInfra, err, nil)
	}
	_, err = r.reports.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "world_id", Value: 1}, {Key: "attacker_village", Value: 1}}},
		{Keys: bson.D{{Key: "world_id", Value: 1}, {Key: "defender_village", Value: 1}}},
	})
	return errs.Wrap(OpEnsureIndexes, errs.KindInfra, err, nil)
}

func (r *WorldRepository) LoadVillage(ctx context.Context, worldID entity.WorldID, id entity.VillageID) (*entity.Village, error) {
	if err := r.ready(); err != nil {
		return nil, errs.Wrap(OpLoadVillage, errs.KindInfra, err, nil)
	}
	var doc model.VillageDoc
	err := r.villages.FindOne(ctx, bson.M{"_id": model.VillageKey(worldID, id)}).Decode(&doc)
	switch {
	case err == nil:
		return model.DocToVillage(&doc), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, entity.ErrVillageNotFound
	default:
		return nil, errs.Wrap(OpLoadVillage, errs.KindInfra, err, map[string]any{"village_id": id})
	}
}

func (r *WorldRepository) ListVillages(ctx context.Context, worldID entity.WorldID) ([]*entity.Village, error) {
	if err := r.ready(); err != nil {
		return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, nil)
	}
	cur, err := r.villages.Find(ctx, bson.M{"world_id": int64(worldID)}, options.Find().SetSort(bson.D{{Key: "village_id", Value: 1}}))
	if err != nil {
		return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, nil)
	}
	var docs []model.VillageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errs.Wrap(OpListVillages, errs.KindInfra, err, nil)
	}
	out := make([]*entity.Village, 0, len(docs))
	for i := range docs {
		out = append(out, model.DocToVillage(&docs[i]))
	}
	return out, nil
}

func (r *WorldRepository) LoadArmy(ctx context.Context, worldID entity.WorldID, id entity.ArmyID) (*entity.Army, error) {
	if err := r.ready(); err != nil {
		return nil, errs.Wrap(OpLoadArmy, errs.KindInfra, err, nil)
	}
	var doc model.ArmyDoc
	err := r.armies.FindOne(ctx, bson.M{"_id": model.ArmyKey(worldID, id)}).Decode(&doc)
	switch {
	case err == nil:
		return model.DocToArmy(&doc), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, entity.ErrArmyNotFound
	default:
		return nil, errs.Wrap(OpLoadArmy, errs.KindInfra, err, map[string]any{"army_id": id})
	}
}

func (r *WorldRepository) LoadEvents(ctx context.Context, worldID entity.WorldID) ([]entity.ScheduledEvent, error) {
	if err := r.ready(); err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
	}
	opts := options.Find().SetSort(bson.D{{Key: "due", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := r.events.Find(ctx, bson.M{"world_id": int64(worldID)}, opts)
	if err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
	}
	var docs []model.EventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errs.Wrap(OpLoadEvents, errs.KindInfra, err, nil)
	}
	out := make([]entity.ScheduledEvent, 0, len(docs))
	for i := range docs {
		out = append(out, model.DocToEvent(&docs[i]))
	}
	return out, nil
}

func (r *WorldRepository) ListReports(ctx context.Context, worldID entity.WorldID, villageID entity.VillageID, limit int) ([]*entity.BattleReport, error) {
	if err := r.ready(); err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
	}
	filter := bson.M{"world_id": int64(worldID)}
	if villageID != 0 {
		filter["$or"] = bson.A{
			bson.M{"attacker_village": int64(villageID)},
			bson.M{"defender_village": int64(villageID)},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.reports.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
	}
	var docs []model.ReportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errs.Wrap(OpListReports, errs.KindInfra, err, nil)
	}
	out := make([]*entity.BattleReport, 0, len(docs))
	for i := range docs {
		out = append(out, model.DocToReport(&docs[i]))
	}
	return out, nil
}

func (r *WorldRepository) Commit(ctx context.Context, c *port.Change) error {
	if c == nil || c.Empty() {
		return nil
	}
	if err := r.ready(); err != nil {
		return errs.Wrap(OpCommit, errs.KindInfra, err, nil)
	}
	sess, err := r.client.StartSession()
	if err != nil {
		return errs.Wrap(OpCommit, errs.KindInfra, err, nil)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, r.apply(ctx, c)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrStaleVersion), errors.Is(err, entity.ErrCoordinateTaken):
		return err
	default:
		return errs.Wrap(OpCommit, errs.KindInfra, err, map[string]any{"world_id": c.WorldID})
	}
}

func (r *WorldRepository) apply(ctx context.Context, c *port.Change) error {
	if c.Village != nil {
		if err := r.saveVillage(ctx, c); err != nil {
			return err
		}
	}
	if len(c.NewEvents) > 0 {
		docs := make([]any, 0, len(c.NewEvents))
		for _, ev := range c.NewEvents {
			docs = append(docs, model.EventToDoc(ev))
		}
		if _, err := r.events.InsertMany(ctx, docs); err != nil {
			return err
		}
	}
	if len(c.DoneEvents) > 0 {
		if _, err := r.events.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": eventKeys(c.DoneEvents)}}); err != nil {
			return err
		}
	}
	if len(c.NewArmies) > 0 {
		docs := make([]any, 0, len(c.NewArmies))
		for _, a := range c.NewArmies {
			docs = append(docs, model.ArmyToDoc(a))
		}
		if _, err := r.armies.InsertMany(ctx, docs); err != nil {
			return err
		}
	}
	if len(c.DoneArmies) > 0 {
		keys := make([]string, 0, len(c.DoneArmies))
		for _, id := range c.DoneArmies {
			keys = append(keys, model.ArmyKey(c.WorldID, id))
		}
		if _, err := r.armies.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
			return err
		}
	}
	if len(c.Reports) > 0 {
		docs := make([]any, 0, len(c.Reports))
		for _, rep := range c.Reports {
			docs = append(docs, model.ReportToDoc(rep))
		}
		if _, err := r.reports.InsertMany(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

func (r *WorldRepository) saveVillage(ctx context.Context, c *port.Change) error {
	doc := model.VillageToDoc(c.Village)
	if c.CreateVillage {
		n, err := r.villages.CountDocuments(ctx, bson.M{"_id": doc.Key})
		if err != nil {
			return err
		}
		if n > 0 {
			return entity.ErrStaleVersion
		}
		_, err = r.villages.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return entity.ErrCoordinateTaken
		}
		return err
	}

	res, err := r.villages.ReplaceOne(ctx, bson.M{"_id": doc.Key, "version": c.ExpectedVersion}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return entity.ErrStaleVersion
	}
	return nil
}

func (r *WorldRepository) DeleteEvents(ctx context.Context, worldID entity.WorldID, keys []entity.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.ready(); err != nil {
		return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, nil)
	}
	_, err := r.events.DeleteMany(ctx, bson.M{"world_id": int64(worldID), "_id": bson.M{"$in": eventKeys(keys)}})
	return errs.Wrap(OpDeleteEvents, errs.KindInfra, err, map[string]any{"events": len(keys)})
}

func eventKeys(keys []entity.EventKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.EventKey(k))
	}
	return out
}
