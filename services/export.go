package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"checkin-keeper/internal/logger"
	"checkin-keeper/internal/repository"
	"checkin-keeper/models"
	"checkin-keeper/utils"
)

// ExportService renders accounts and their balance history as a spreadsheet
// or JSON document for download. Credentials never leave the database
// through this path.
type ExportService struct {
	accounts  repository.AccountRepository
	providers repository.ProviderRepository
	history   repository.BalanceHistoryRepository
}

func NewExportService(
	accounts repository.AccountRepository,
	providers repository.ProviderRepository,
	history repository.BalanceHistoryRepository,
) *ExportService {
	return &ExportService{accounts: accounts, providers: providers, history: history}
}

type accountExportRow struct {
	Name        string     `json:"name"`
	Provider    string     `json:"provider"`
	Enabled     bool       `json:"enabled"`
	AutoCheckIn string     `json:"auto_check_in"`
	LastCheckIn *time.Time `json:"last_check_in,omitempty"`
	Balance     *float64   `json:"balance,omitempty"`
	Consumed    *float64   `json:"consumed,omitempty"`
	BalanceAsOf *time.Time `json:"balance_as_of,omitempty"`
	HistoryDays int        `json:"history_days"`
}

// ExportData gathers everything the export formats render.
type ExportData struct {
	ExportedAt time.Time                                 `json:"exported_at"`
	Accounts   []accountExportRow                        `json:"accounts"`
	History    map[string][]*models.BalanceHistoryRecord `json:"history"`
}

func (s *ExportService) collect(ctx context.Context, historyDays int) (*ExportData, error) {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	providerNames := make(map[string]string)
	if providers, err := s.providers.FindAll(ctx); err == nil {
		for _, p := range providers {
			providerNames[p.ID] = p.Name
		}
	}

	data := &ExportData{
		ExportedAt: time.Now().UTC(),
		History:    make(map[string][]*models.BalanceHistoryRecord),
	}

	for _, account := range accounts {
		schedule := "off"
		if account.AutoCheckIn.Enabled {
			schedule = fmt.Sprintf("%02d:%02d", account.AutoCheckIn.Hour, account.AutoCheckIn.Minute)
		}

		records, err := s.history.FindByAccountID(ctx, account.ID, historyDays)
		if err != nil {
			logger.Warn("export: failed to load history", "account", account.Name, "error", err.Error())
		}
		data.History[account.Name] = records

		data.Accounts = append(data.Accounts, accountExportRow{
			Name:        account.Name,
			Provider:    providerNames[account.ProviderID],
			Enabled:     account.Enabled,
			AutoCheckIn: schedule,
			LastCheckIn: account.LastCheckIn,
			Balance:     account.CurrentBalance,
			Consumed:    account.TotalConsumed,
			BalanceAsOf: account.LastBalanceCheckAt,
			HistoryDays: len(records),
		})
	}

	return data, nil
}

// ExportJSON renders the export as an indented JSON document.
func (s *ExportService) ExportJSON(ctx context.Context, historyDays int) ([]byte, error) {
	data, err := s.collect(ctx, historyDays)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to marshal export", err)
	}
	return out, nil
}

// ExportExcel renders the export as an xlsx workbook with an Accounts sheet
// and one Balance History sheet.
func (s *ExportService) ExportExcel(ctx context.Context, historyDays int) ([]byte, error) {
	data, err := s.collect(ctx, historyDays)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close workbook", "error", err.Error())
		}
	}()

	sheetName := "Accounts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to create sheet", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Name", "Provider", "Enabled", "Auto Check-In", "Last Check-In", "Balance", "Consumed", "Balance As Of"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, row := range data.Accounts {
		r := rowIdx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", r), row.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", r), row.Provider)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", r), row.Enabled)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", r), row.AutoCheckIn)
		if row.LastCheckIn != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("E%d", r), row.LastCheckIn.Format("2006-01-02 15:04:05"))
		}
		if row.Balance != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("F%d", r), *row.Balance)
		}
		if row.Consumed != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("G%d", r), *row.Consumed)
		}
		if row.BalanceAsOf != nil {
			f.SetCellValue(sheetName, fmt.Sprintf("H%d", r), row.BalanceAsOf.Format("2006-01-02 15:04:05"))
		}
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}

	historySheet := "Balance History"
	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to create history sheet", err)
	}

	historyHeaders := []string{"Account", "Date", "Balance", "Consumed", "Total Income", "Recorded At"}
	for i, header := range historyHeaders {
		f.SetCellValue(historySheet, fmt.Sprintf("%c1", 'A'+i), header)
	}

	row := 2
	for accountName, records := range data.History {
		for _, record := range records {
			f.SetCellValue(historySheet, fmt.Sprintf("A%d", row), accountName)
			f.SetCellValue(historySheet, fmt.Sprintf("B%d", row), record.Date)
			f.SetCellValue(historySheet, fmt.Sprintf("C%d", row), record.CurrentBalance)
			f.SetCellValue(historySheet, fmt.Sprintf("D%d", row), record.TotalConsumed)
			f.SetCellValue(historySheet, fmt.Sprintf("E%d", row), record.TotalIncome)
			f.SetCellValue(historySheet, fmt.Sprintf("F%d", row), record.RecordedAt.Format("2006-01-02 15:04:05"))
			row++
		}
	}

	// The default Sheet1 is noise once real sheets exist.
	f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, utils.WrapDomainError(utils.KindInfrastructure, "failed to write workbook", err)
	}
	return buf.Bytes(), nil
}
