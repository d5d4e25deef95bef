// Package report aggregates closed sessions, payments and shifts into the
// operator reports, reusing the pricing engine's money types.
package report

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"clubpoint-backend/internal/model"
)

// Service computes reports from the shared store.
type Service struct {
	db *gorm.DB
}

// NewService creates the report service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// overlapSeconds returns the length of the intersection of two intervals.
func overlapSeconds(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Seconds()
}

// energyKWh converts a wattage running for the given seconds into kWh.
func energyKWh(watt int, seconds float64) float64 {
	return (float64(watt) / 1000) * (seconds / 3600)
}

func round(v float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(v*factor) / factor
}

// PowerRow is one machine's share of the power report.
type PowerRow struct {
	MachineID   int64   `json:"machine_id"`
	MachineName string  `json:"machine_name"`
	Watt        int     `json:"watt"`
	HoursUsed   float64 `json:"hours_used"`
	KWhUsed     float64 `json:"kwh_used"`
}

// PowerReport estimates electricity consumed by sessions in the window.
type PowerReport struct {
	DateFrom    time.Time  `json:"date_from"`
	DateTo      time.Time  `json:"date_to"`
	PricePerKWh float64    `json:"price_per_kwh"`
	Rows        []PowerRow `json:"rows"`
	TotalKWh    float64    `json:"total_kwh"`
	TotalCost   float64    `json:"total_cost"`
}

// Power sums, per machine, the overlap of its closed sessions with the
// window and converts wattage into kWh and cost.
func (s *Service) Power(ctx context.Context, from, to time.Time, pricePerKWh float64) (*PowerReport, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Find(&machines).Error; err != nil {
		return nil, err
	}
	machineMap := make(map[int64]model.Machine, len(machines))
	for _, m := range machines {
		machineMap[m.ID] = m
	}

	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("ended_at IS NOT NULL AND started_at < ? AND ended_at > ?", to, from).
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	secondsByMachine := make(map[int64]float64)
	for _, sess := range sessions {
		secondsByMachine[sess.MachineID] += overlapSeconds(sess.StartedAt, *sess.EndedAt, from, to)
	}

	report := &PowerReport{DateFrom: from, DateTo: to, PricePerKWh: pricePerKWh}
	for machineID, sec := range secondsByMachine {
		m, ok := machineMap[machineID]
		if !ok {
			continue
		}
		kwh := energyKWh(m.Watt, sec)
		report.Rows = append(report.Rows, PowerRow{
			MachineID:   m.ID,
			MachineName: m.Name,
			Watt:        m.Watt,
			HoursUsed:   round(sec/3600, 2),
			KWhUsed:     round(kwh, 3),
		})
		report.TotalKWh += kwh
		report.TotalCost += kwh * pricePerKWh
	}
	report.TotalKWh = round(report.TotalKWh, 3)
	report.TotalCost = round(report.TotalCost, 2)
	return report, nil
}

// ZoneRevenueRow is the session revenue attributed to one pricing zone.
type ZoneRevenueRow struct {
	Zone    model.Zone      `json:"zone"`
	Revenue decimal.Decimal `json:"revenue"`
}

// FinanceReport combines payment income with session revenue by zone.
type FinanceReport struct {
	DateFrom       time.Time        `json:"date_from"`
	DateTo         time.Time        `json:"date_to"`
	Income         decimal.Decimal  `json:"income"`
	SessionRevenue decimal.Decimal  `json:"session_revenue"`
	ByZone         []ZoneRevenueRow `json:"by_zone"`
}

// Finance sums payment income received in the window and the billed amounts
// of sessions that overlap it, split by zone.
func (s *Service) Finance(ctx context.Context, from, to time.Time) (*FinanceReport, error) {
	var payments []model.Payment
	if err := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Find(&payments).Error; err != nil {
		return nil, err
	}

	income := decimal.Zero
	for _, p := range payments {
		income = income.Add(p.Amount)
	}

	var machines []model.Machine
	if err := s.db.WithContext(ctx).Find(&machines).Error; err != nil {
		return nil, err
	}
	zoneByMachine := make(map[int64]model.Zone, len(machines))
	for _, m := range machines {
		zoneByMachine[m.ID] = m.Zone
	}

	var sessions []model.Session
	if err := s.db.WithContext(ctx).
		Where("ended_at IS NOT NULL AND started_at < ? AND ended_at > ?", to, from).
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	revenue := decimal.Zero
	byZone := make(map[model.Zone]decimal.Decimal)
	for _, sess := range sessions {
		revenue = revenue.Add(sess.Amount)
		zone, ok := zoneByMachine[sess.MachineID]
		if !ok {
			continue
		}
		byZone[zone] = byZone[zone].Add(sess.Amount)
	}

	report := &FinanceReport{
		DateFrom:       from,
		DateTo:         to,
		Income:         income,
		SessionRevenue: revenue,
	}
	for _, zone := range []model.Zone{model.ZoneStandard, model.ZonePremium, model.ZoneVIP, model.ZoneSuperVIP, model.ZoneSolo} {
		if amount, ok := byZone[zone]; ok {
			report.ByZone = append(report.ByZone, ZoneRevenueRow{Zone: zone, Revenue: amount})
		}
	}
	return report, nil
}

// Flat payroll terms: a fixed rate per worked shift, taxed at source.
const (
	payPerShift = 2500
	taxRate     = 0.13
)

// SalaryRow is one employee's pay for the month.
type SalaryRow struct {
	EmployeeID  int64   `json:"employee_id"`
	FullName    string  `json:"full_name"`
	Shifts      int     `json:"shifts"`
	PayPerShift int     `json:"pay_per_shift"`
	TotalSalary float64 `json:"total_salary"`
	Taxes       float64 `json:"taxes"`
}

// SalariesReport is the monthly payroll summary.
type SalariesReport struct {
	Month       string      `json:"month"`
	Rows        []SalaryRow `json:"rows"`
	TotalSalary float64     `json:"total_salary"`
	TotalTaxes  float64     `json:"total_taxes"`
}

// Salaries counts shifts per employee in the given month (YYYY-MM) and
// applies the flat per-shift rate.
func (s *Service) Salaries(ctx context.Context, year, month int) (*SalariesReport, error) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var shifts []model.Shift
	if err := s.db.WithContext(ctx).
		Where("shift_date >= ? AND shift_date < ?", start, end).
		Find(&shifts).Error; err != nil {
		return nil, err
	}

	var employees []model.Employee
	if err := s.db.WithContext(ctx).Find(&employees).Error; err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(employees))
	for _, e := range employees {
		names[e.ID] = e.FullName
	}

	counts := make(map[int64]int)
	for _, sh := range shifts {
		counts[sh.EmployeeID]++
	}

	report := &SalariesReport{Month: start.Format("2006-01")}
	for employeeID, n := range counts {
		name, ok := names[employeeID]
		if !ok {
			name = "Unknown"
		}
		salary := float64(n * payPerShift)
		tax := salary * taxRate
		report.Rows = append(report.Rows, SalaryRow{
			EmployeeID:  employeeID,
			FullName:    name,
			Shifts:      n,
			PayPerShift: payPerShift,
			TotalSalary: salary,
			Taxes:       tax,
		})
		report.TotalSalary += salary
		report.TotalTaxes += tax
	}
	return report, nil
}
