package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/klauspost/compress/zstd"

	"TribalRealms/internal/world/entity"
)

// Filter 为空字段不过滤。
type Filter struct {
	VillageID entity.VillageID
	PlayerID  entity.PlayerID
}

func (f Filter) match(r *entity.BattleReport) bool {
	if f.VillageID != 0 && r.AttackerVillage != f.VillageID && r.DefenderVillage != f.VillageID {
		return false
	}
	if f.PlayerID != 0 && r.AttackerPlayer != f.PlayerID && r.DefenderPlayer != f.PlayerID {
		return false
	}
	return true
}

// Files 列出某个世界的归档文件，按小时升序。
func Files(dir string, worldID entity.WorldID) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("reports-%d-*.jsonl.zst", worldID)))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Scan 依次读取目录下的归档，fn 返回 false 时停止。
func Scan(dir string, worldID entity.WorldID, filter Filter, fn func(r *entity.BattleReport) bool) error {
	files, err := Files(dir, worldID)
	if err != nil {
		return err
	}
	for _, path := range files {
		more, err := scanFile(path, filter, fn)
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if !more {
			return nil
		}
	}
	return nil
}

func scanFile(path string, filter Filter, fn func(r *entity.BattleReport) bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return false, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r entity.BattleReport
		if err := json.Unmarshal(line, &r); err != nil {
			return false, err
		}
		if filter.match(&r) && !fn(&r) {
			return false, nil
		}
	}
	return true, sc.Err()
}
