package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02 15:04:05"
)

// CSVHeader is the header row of the sales export
var CSVHeader = []string{
	"sale_id", "datetime", "sale_total", "sale_discount",
	"product_id", "product_code", "product_name", "qty", "unit_price",
}

// ReportService builds sales reports. Days are cut at midnight in location.
type ReportService struct {
	store    *store.Store
	location *time.Location
}

// NewReportService creates a new report service
func NewReportService(store *store.Store, location *time.Location) *ReportService {
	if location == nil {
		location = time.Local
	}
	return &ReportService{store: store, location: location}
}

// Location returns the time zone reports are computed in
func (s *ReportService) Location() *time.Location {
	return s.location
}

// ParseDay parses a YYYY-MM-DD date in the report location
func (s *ReportService) ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, value, s.location)
}

// DayBounds returns [start of day, start of next day) for the day containing t
func (s *ReportService) DayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.location)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	return from, from.AddDate(0, 0, 1)
}

// DailyReport lists the sales of one day with their totals
func (s *ReportService) DailyReport(ctx context.Context, day time.Time) (*models.DailyReport, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.DailyReport")
	defer span.End()

	from, to := s.DayBounds(day)

	sales, err := s.store.ListSalesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &models.DailyReport{
		Date:           from.Format(dateLayout),
		Sales:          sales,
		SalesCount:     len(sales),
		GrossTotal:     decimal.Zero,
		TotalDiscounts: decimal.Zero,
	}
	for _, sale := range sales {
		report.GrossTotal = report.GrossTotal.Add(sale.Total)
		report.TotalDiscounts = report.TotalDiscounts.Add(sale.Discount)
	}

	return report, nil
}

// ExportCSV writes one row per (sale, line) of the day to w and returns the
// number of data rows. A day without sales yields only the header.
func (s *ReportService) ExportCSV(ctx context.Context, day time.Time, w io.Writer) (int, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.ExportCSV")
	defer span.End()

	from, to := s.DayBounds(day)

	rows, err := s.store.ListSalesReportRows(ctx, from, to)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		if err := cw.Write(s.formatRow(row)); err != nil {
			return 0, fmt.Errorf("failed to write csv row for sale %d: %w", row.SaleID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	return len(rows), nil
}

func (s *ReportService) formatRow(row models.SalesReportRow) []string {
	record := []string{
		strconv.FormatInt(row.SaleID, 10),
		row.CreatedAt.In(s.location).Format(datetimeLayout),
		money(row.SaleTotal),
		money(row.SaleDiscount),
		"", "", "", "", "",
	}
	if row.ProductID != nil {
		record[4] = strconv.FormatInt(*row.ProductID, 10)
	}
	if row.ProductCode != nil {
		record[5] = *row.ProductCode
	}
	if row.ProductName != nil {
		record[6] = *row.ProductName
	}
	if row.Qty != nil {
		record[7] = strconv.Itoa(*row.Qty)
	}
	if row.UnitPrice.Valid {
		record[8] = money(row.UnitPrice.Decimal)
	}
	return record
}

// ReadCSV parses a sales export. Datetimes are read in the report location.
func (s *ReportService) ReadCSV(r io.Reader) ([]models.SalesReportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty sales export")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, name := range CSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv column %d: got %q, want %q", i+1, header[i], name)
		}
	}

	rows := []models.SalesReportRow{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		row, err := s.parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (s *ReportService) parseRow(record []string) (models.SalesReportRow, error) {
	var row models.SalesReportRow
	var err error

	if row.SaleID, err = strconv.ParseInt(record[0], 10, 64); err != nil {
		return row, fmt.Errorf("sale_id: %w", err)
	}
	if row.CreatedAt, err = time.ParseInLocation(datetimeLayout, record[1], s.location); err != nil {
		return row, fmt.Errorf("datetime: %w", err)
	}
	if row.SaleTotal, err = decimal.NewFromString(record[2]); err != nil {
		return row, fmt.Errorf("sale_total: %w", err)
	}
	if row.SaleDiscount, err = decimal.NewFromString(record[3]); err != nil {
		return row, fmt.Errorf("sale_discount: %w", err)
	}

	if record[4] != "" {
		id, err := strconv.ParseInt(record[4], 10, 64)
		if err != nil {
			return row, fmt.Errorf("product_id: %w", err)
		}
		row.ProductID = &id
	}
	if record[5] != "" {
		code := record[5]
		row.ProductCode = &code
	}
	if record[6] != "" {
		name := record[6]
		row.ProductName = &name
	}
	if record[7] != "" {
		qty, err := strconv.Atoi(record[7])
		if err != nil {
			return row, fmt.Errorf("qty: %w", err)
		}
		row.Qty = &qty
	}
	if record[8] != "" {
		price, err := decimal.NewFromString(record[8])
		if err != nil {
			return row, fmt.Errorf("unit_price: %w", err)
		}
		row.UnitPrice = decimal.NewNullDecimal(price)
	}

	return row, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(cart.MoneyPlaces)
}
