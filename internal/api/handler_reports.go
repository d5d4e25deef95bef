package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clubpoint-backend/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// reportWindow parses the date_from/date_to query params shared by the power
// and finance reports. Dates are YYYY-MM-DD; date_to is exclusive-extended to
// the end of that day.
func reportWindow(c *gin.Context) (time.Time, time.Time, bool) {
	from, err := time.Parse("2006-01-02", c.Query("date_from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse("2006-01-02", c.Query("date_to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to, expected YYYY-MM-DD"})
		return time.Time{}, time.Time{}, false
	}
	to = to.AddDate(0, 0, 1)
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date_to must not be before date_from"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func wantsExcel(c *gin.Context) bool {
	return c.Query("format") == "xlsx"
}

func serveWorkbook(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// PowerReport handles GET /api/reports/power (staff only).
func (h *Handler) PowerReport(c *gin.Context) {
	from, to, ok := reportWindow(c)
	if !ok {
		return
	}
	pricePerKWh := 7.0
	if raw := c.Query("price_per_kwh"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_per_kwh"})
			return
		}
		pricePerKWh = v
	}

	rep, err := h.reports.Power(c.Request.Context(), from, to, pricePerKWh)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if wantsExcel(c) {
		rows := make([][]any, 0, len(rep.Rows))
		for _, r := range rep.Rows {
			rows = append(rows, []any{r.MachineID, r.MachineName, r.Watt, r.HoursUsed, r.KWhUsed})
		}
		data, err := report.Workbook("Power report",
			[]string{"Machine ID", "Machine", "Watt", "Hours used", "kWh used"}, rows)
		if err != nil {
			abortWithError(c, err)
			return
		}
		serveWorkbook(c, "power_report.xlsx", data)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// FinanceReport handles GET /api/reports/finance (staff only).
func (h *Handler) FinanceReport(c *gin.Context) {
	from, to, ok := reportWindow(c)
	if !ok {
		return
	}

	rep, err := h.reports.Finance(c.Request.Context(), from, to)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if wantsExcel(c) {
		rows := make([][]any, 0, len(rep.ByZone)+2)
		for _, r := range rep.ByZone {
			rows = append(rows, []any{string(r.Zone), r.Revenue.StringFixed(2)})
		}
		rows = append(rows,
			[]any{"Session revenue", rep.SessionRevenue.StringFixed(2)},
			[]any{"Payment income", rep.Income.StringFixed(2)})
		data, err := report.Workbook("Finance report", []string{"Zone", "Revenue"}, rows)
		if err != nil {
			abortWithError(c, err)
			return
		}
		serveWorkbook(c, "finance_report.xlsx", data)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// SalariesReport handles GET /api/reports/salaries?month=YYYY-MM (staff only).
func (h *Handler) SalariesReport(c *gin.Context) {
	month, err := time.Parse("2006-01", c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, expected YYYY-MM"})
		return
	}

	rep, err := h.reports.Salaries(c.Request.Context(), month.Year(), int(month.Month()))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if wantsExcel(c) {
		rows := make([][]any, 0, len(rep.Rows))
		for _, r := range rep.Rows {
			rows = append(rows, []any{r.EmployeeID, r.FullName, r.Shifts, r.PayPerShift, r.TotalSalary, r.Taxes})
		}
		data, err := report.Workbook("Salaries "+rep.Month,
			[]string{"Employee ID", "Name", "Shifts", "Pay per shift", "Total", "Taxes"}, rows)
		if err != nil {
			abortWithError(c, err)
			return
		}
		serveWorkbook(c, "salaries_"+rep.Month+".xlsx", data)
		return
	}
	c.JSON(http.StatusOK, rep)
}
