package store

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"crypto_bot/internal/models"
)

// File — CSV-файл на пару: <dir>/<market>-<granularity в секундах>.csv,
// строка: unix_time,low,high,open,close,volume.
type File struct {
	dir string

	mu    sync.Mutex
	lines map[string]map[string]struct{} // путь -> уже записанные строки
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create store dir %s", dir)
	}
	return &File{dir: dir, lines: make(map[string]map[string]struct{})}, nil
}

func (f *File) path(market string, granularity time.Duration) string {
	return filepath.Join(f.dir, fmt.Sprintf("%s-%d.csv", market, int64(granularity/time.Second)))
}

func encodeRate(r models.Rate) []string {
	return []string{
		strconv.FormatInt(r.Time.Unix(), 10),
		r.Low.String(),
		r.High.String(),
		r.Open.String(),
		r.Close.String(),
		r.Volume.String(),
	}
}

func decodeRate(rec []string) (models.Rate, error) {
	if len(rec) != 6 {
		return models.Rate{}, errors.Errorf("want 6 fields, got %d", len(rec))
	}
	sec, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return models.Rate{}, errors.Wrap(err, "time")
	}
	var vals [5]decimal.Decimal
	for i := range vals {
		if vals[i], err = decimal.NewFromString(rec[i+1]); err != nil {
			return models.Rate{}, errors.Wrapf(err, "field %d", i+1)
		}
	}
	return models.Rate{
		Time:   time.Unix(sec, 0).UTC(),
		Low:    vals[0],
		High:   vals[1],
		Open:   vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// known читает строки файла один раз; дальше набор живёт в памяти. Вызывать под f.mu.
func (f *File) known(path string) (map[string]struct{}, error) {
	if set, ok := f.lines[path]; ok {
		return set, nil
	}
	set := make(map[string]struct{})
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		f.lines[path] = set
		return set, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			set[line] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "scan %s", path)
	}
	f.lines[path] = set
	return set, nil
}

func (f *File) Append(_ context.Context, market string, granularity time.Duration, rows []models.Rate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(market, granularity)
	set, err := f.known(path)
	if err != nil {
		return 0, err
	}

	var (
		buf   strings.Builder
		fresh []string
	)
	for _, r := range rows {
		line := strings.Join(encodeRate(r), ",")
		if _, dup := set[line]; dup {
			continue
		}
		set[line] = struct{}{}
		fresh = append(fresh, line)
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		f.forget(set, fresh)
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()
	if _, err := io.WriteString(fh, buf.String()); err != nil {
		f.forget(set, fresh)
		return 0, errors.Wrapf(err, "append %s", path)
	}
	return len(fresh), nil
}

func (f *File) forget(set map[string]struct{}, lines []string) {
	for _, l := range lines {
		delete(set, l)
	}
}

func (f *File) Load(_ context.Context, market string, granularity time.Duration) ([]models.Rate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(market, granularity)
	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	var out []models.Rate
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		rate, err := decodeRate(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		out = append(out, rate)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (f *File) Newest(ctx context.Context, market string, granularity time.Duration) (time.Time, bool, error) {
	rows, err := f.Load(ctx, market, granularity)
	if err != nil || len(rows) == 0 {
		return time.Time{}, false, err
	}
	return rows[len(rows)-1].Time, true, nil
}
