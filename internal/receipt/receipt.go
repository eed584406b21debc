// Package receipt renders committed sales into text artifacts, one file per
// sale, named receipt_{saleID}_{YYYYMMDD_HHMMSS}.txt.
package receipt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
)

const (
	fileTimeLayout    = "20060102_150405"
	displayTimeLayout = "2006-01-02 15:04:05"
	ruleWidth         = 30
)

// Handle identifies a written receipt
type Handle struct {
	SaleID int64  `json:"sale_id"`
	Path   string `json:"path"`
}

// Emitter writes receipts into a directory of fs
type Emitter struct {
	fs       afero.Fs
	dir      string
	location *time.Location
}

// NewEmitter creates an emitter writing into dir on the OS filesystem.
// Timestamps are rendered in loc.
func NewEmitter(dir string, loc *time.Location) *Emitter {
	return NewEmitterFs(afero.NewOsFs(), dir, loc)
}

// NewEmitterFs creates an emitter on an arbitrary filesystem
func NewEmitterFs(fs afero.Fs, dir string, loc *time.Location) *Emitter {
	if loc == nil {
		loc = time.Local
	}
	return &Emitter{fs: fs, dir: dir, location: loc}
}

// Dir returns the receipts directory
func (e *Emitter) Dir() string {
	return e.dir
}

// FileName returns the artifact name for a sale
func (e *Emitter) FileName(saleID int64, ts time.Time) string {
	return fmt.Sprintf("receipt_%d_%s.txt", saleID, ts.In(e.location).Format(fileTimeLayout))
}

// Emit writes the receipt of a committed sale. An existing file with the
// same name is never overwritten. Any failure wraps models.ErrReceiptWrite.
func (e *Emitter) Emit(saleID int64, snapshot cart.Snapshot, ts time.Time, finalTotal decimal.Decimal) (Handle, error) {
	if err := e.fs.MkdirAll(e.dir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create receipts dir: %w: %w", models.ErrReceiptWrite, err)
	}

	path := filepath.Join(e.dir, e.FileName(saleID, ts))

	f, err := e.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Handle{}, fmt.Errorf("create %s: %w: %w", path, models.ErrReceiptWrite, err)
	}

	_, err = f.Write(Render(saleID, snapshot, ts.In(e.location), finalTotal))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Handle{}, fmt.Errorf("write %s: %w: %w", path, models.ErrReceiptWrite, err)
	}

	return Handle{SaleID: saleID, Path: path}, nil
}

// Render returns the receipt text
func Render(saleID int64, snapshot cart.Snapshot, ts time.Time, finalTotal decimal.Decimal) []byte {
	rule := strings.Repeat("-", ruleWidth) + "\n"

	var b bytes.Buffer
	b.WriteString("----- RECEIPT -----\n")
	fmt.Fprintf(&b, "Sale ID: %d\n", saleID)
	fmt.Fprintf(&b, "Date: %s\n", ts.Format(displayTimeLayout))
	b.WriteString(rule)
	for _, line := range snapshot.Lines {
		fmt.Fprintf(&b, "%d x %s @ %s = %s\n",
			line.Qty, line.Name, money(line.UnitPrice), money(line.Subtotal))
	}
	b.WriteString(rule)
	fmt.Fprintf(&b, "SUBTOTAL: %s\n", money(snapshot.Subtotal))
	fmt.Fprintf(&b, "DISCOUNT: %s\n", money(snapshot.Discount))
	fmt.Fprintf(&b, "TOTAL: %s\n", money(finalTotal))
	b.WriteString(rule)

	return b.Bytes()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(cart.MoneyPlaces)
}
