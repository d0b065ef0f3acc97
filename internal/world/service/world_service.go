package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"TribalRealms/internal/shared/gameconfig"
	"TribalRealms/internal/world/entity"
)

const (
	WorldSize     = 1000
	worldCenter   = WorldSize / 2
	initialRadius = 5
	radiusOffset  = 5
	ringTries     = 10
	spotTries     = 50

	startResources = 500
)

var ErrNoSpawnPosition = errors.New("no free spawn position")

// VillageCreator 是出生点分配需要的存储能力，由村庄状态存储实现。
type VillageCreator interface {
	CreateVillage(ctx context.Context, v *entity.Village) (*entity.Village, error)
	ListVillageIDs(ctx context.Context) []entity.VillageID
}

// WorldService 负责新村庄的出生点分配：按环形向外铺开，保持中心区域约 25% 的覆盖率。
type WorldService struct {
	store VillageCreator

	mu  sync.Mutex
	rng *rand.Rand
}

func NewWorldService(store VillageCreator, seed uint64) *WorldService {
	return &WorldService{
		store: store,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// SpawnVillage 为玩家创建新村庄；owner 为 entity.Barbarian 时创建野村（资源建筑 10 级）。
func (s *WorldService) SpawnVillage(ctx context.Context, owner entity.PlayerID, name string, now time.Time) (*entity.Village, error) {
	radius := currentRadius(len(s.store.ListVillageIDs(ctx)))
	for extra := 0; extra < ringTries; extra++ {
		for range spotTries {
			x, y, terrain := s.candidate(radius-radiusOffset+extra, radius+radiusOffset+extra)
			if !inBounds(x, y) {
				continue
			}
			v, err := s.store.CreateVillage(ctx, newVillage(owner, name, x, y, terrain, now))
			if errors.Is(err, entity.ErrCoordinateTaken) {
				continue
			}
			return v, err
		}
	}
	return nil, fmt.Errorf("%w: radius=%d", ErrNoSpawnPosition, radius)
}

// currentRadius 求解 n / (πr²) = 0.25，即 r = 2√(n/π)，且不小于初始半径。
func currentRadius(villages int) int {
	if villages == 0 {
		return initialRadius
	}
	return max(int(2*math.Sqrt(float64(villages)/math.Pi)), initialRadius)
}

func (s *WorldService) candidate(minRadius, maxRadius int) (int, int, gameconfig.Terrain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minRadius = max(minRadius, 0)
	angle := s.rng.Float64() * 2 * math.Pi
	r := minRadius + s.rng.IntN(maxRadius-minRadius+1)
	x := int(worldCenter + float64(r)*math.Cos(angle))
	y := int(worldCenter + float64(r)*math.Sin(angle))
	return x, y, pickTerrain(s.rng.IntN(100))
}

func pickTerrain(roll int) gameconfig.Terrain {
	switch {
	case roll < 60:
		return gameconfig.Plains
	case roll < 80:
		return gameconfig.Forest
	case roll < 95:
		return gameconfig.Hills
	default:
		return gameconfig.Mountain
	}
}

func inBounds(x, y int) bool {
	return x >= 0 && x < WorldSize && y >= 0 && y < WorldSize
}

func newVillage(owner entity.PlayerID, name string, x, y int, terrain gameconfig.Terrain, now time.Time) *entity.Village {
	production := 1
	if owner == entity.Barbarian {
		production = 10
	}
	if name == "" {
		name = "Village"
		if owner == entity.Barbarian {
			name = "Abandoned Village"
		}
	}
	return &entity.Village{
		OwnerID: owner,
		Name:    name,
		X:       x,
		Y:       y,
		Terrain: terrain,
		Buildings: map[gameconfig.BuildingType]int{
			gameconfig.Headquarters: 1,
			gameconfig.Woodcutter:   production,
			gameconfig.ClayPit:      production,
			gameconfig.IronMine:     production,
			gameconfig.Farm:         1,
			gameconfig.Storage:      1,
		},
		Resources:   entity.Resources{Wood: startResources, Clay: startResources, Iron: startResources},
		Garrison:    entity.Units{},
		LastAccrual: entity.Millis(now),
	}
}
