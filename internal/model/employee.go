package model

import "time"

// Employee is a venue staff member on the payroll.
type Employee struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	FullName string `gorm:"size:120;not null" json:"full_name"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`
}

// Shift is one working day of an employee, used by the salary report.
type Shift struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	EmployeeID int64     `gorm:"index;not null" json:"employee_id"`
	ShiftDate  time.Time `gorm:"type:date;index;not null" json:"shift_date"`
}
