// Package ledger tracks metered-API credit per credential.
//
// The ledger file belongs to an external owner. This package only reads the
// remaining quota and adds to the used counter; it never resets or
// restructures the file.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/JakeFAU/metal-price-harvester/internal/crawler"
)

// DefaultCost is the credit charged per metered request.
const DefaultCost = 25

const (
	keysField = "API_KEYS"
	keyField  = "API_KEY"
	maxField  = "MAX_CREDIT"
	usedField = "USED_CREDIT"
	idPrefix  = "User_"
)

// Credential is one API key and its quota.
type Credential struct {
	ID         string
	APIKey     string
	MaxCredit  int
	UsedCredit int
}

// Remaining returns the unused credit.
func (c Credential) Remaining() int {
	return c.MaxCredit - c.UsedCredit
}

// Ledger is the narrow interface the pipeline needs. Callers serialize
// TryReserve and Commit for the same credential.
type Ledger interface {
	Credentials(ctx context.Context) ([]Credential, error)
	TryReserve(ctx context.Context, id string) (bool, error)
	Commit(ctx context.Context, id string) error
}

// Select returns the first credential, in natural ID order, that can pay for
// one more request.
func Select(ctx context.Context, l Ledger) (Credential, error) {
	creds, err := l.Credentials(ctx)
	if err != nil {
		return Credential{}, err
	}
	for _, c := range creds {
		ok, err := l.TryReserve(ctx, c.ID)
		if err != nil {
			return Credential{}, err
		}
		if ok {
			return c, nil
		}
	}
	return Credential{}, crawler.ErrQuotaExhausted
}

// FileLedger keeps credentials in a JSON file of the form
// {"API_KEYS": {"User_1": {"API_KEY": "...", "MAX_CREDIT": 1000, "USED_CREDIT": 0}}}.
// Unknown keys at any level are written back untouched.
type FileLedger struct {
	path string
	cost int
	mu   sync.Mutex
}

// NewFileLedger opens the ledger at path. A non-positive cost uses DefaultCost.
func NewFileLedger(path string, cost int) *FileLedger {
	if cost <= 0 {
		cost = DefaultCost
	}
	return &FileLedger{path: path, cost: cost}
}

// Cost returns the credit charged per request.
func (l *FileLedger) Cost() int {
	return l.cost
}

// Credentials lists every credential in natural ID order (User_2 before User_10).
func (l *FileLedger) Credentials(_ context.Context) ([]Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	return doc.credentials()
}

// TryReserve reports whether id has enough credit left for one request.
func (l *FileLedger) TryReserve(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.load()
	if err != nil {
		return false, err
	}
	c, err := doc.credential(id)
	if err != nil {
		return false, err
	}
	return c.Remaining() >= l.cost, nil
}

// Commit charges one request to id.
func (l *FileLedger) Commit(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	doc, err := l.load()
	if err != nil {
		return err
	}
	c, err := doc.credential(id)
	if err != nil {
		return err
	}
	if err := doc.setUsed(id, c.UsedCredit+l.cost); err != nil {
		return err
	}
	return l.save(doc)
}

type ledgerDoc struct {
	root map[string]json.RawMessage
	keys map[string]map[string]json.RawMessage
}

func (l *FileLedger) load() (*ledgerDoc, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	doc := &ledgerDoc{}
	if err := json.Unmarshal(raw, &doc.root); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	keys, ok := doc.root[keysField]
	if !ok {
		return nil, fmt.Errorf("decode ledger: missing %s", keysField)
	}
	if err := json.Unmarshal(keys, &doc.keys); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", keysField, err)
	}
	return doc, nil
}

func (l *FileLedger) save(doc *ledgerDoc) error {
	keys, err := json.Marshal(doc.keys)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	doc.root[keysField] = keys
	data, err := json.MarshalIndent(doc.root, "", "    ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func (d *ledgerDoc) credential(id string) (Credential, error) {
	fields, ok := d.keys[id]
	if !ok {
		return Credential{}, fmt.Errorf("unknown credential %q", id)
	}
	c := Credential{ID: id}
	if err := decodeField(fields, keyField, &c.APIKey); err != nil {
		return Credential{}, fmt.Errorf("credential %s: %w", id, err)
	}
	if err := decodeField(fields, maxField, &c.MaxCredit); err != nil {
		return Credential{}, fmt.Errorf("credential %s: %w", id, err)
	}
	if err := decodeField(fields, usedField, &c.UsedCredit); err != nil {
		return Credential{}, fmt.Errorf("credential %s: %w", id, err)
	}
	return c, nil
}

func (d *ledgerDoc) credentials() ([]Credential, error) {
	ids := make([]string, 0, len(d.keys))
	for id := range d.keys {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return naturalLess(ids[i], ids[j]) })
	out := make([]Credential, 0, len(ids))
	for _, id := range ids {
		c, err := d.credential(id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *ledgerDoc) setUsed(id string, used int) error {
	raw, err := json.Marshal(used)
	if err != nil {
		return err
	}
	d.keys[id][usedField] = raw
	return nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("missing %s", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// naturalLess orders User_N ids numerically and everything else after them
// lexically.
func naturalLess(a, b string) bool {
	na, aok := userNumber(a)
	nb, bok := userNumber(b)
	switch {
	case aok && bok:
		return na < nb
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

func userNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
