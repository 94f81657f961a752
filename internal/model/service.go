package model

// Service is a bookable government service offered by a department.
type Service struct {
	ID           string
	DepartmentID string
	Name         string
}

// Officer is a department staff member appointments can be assigned to.
type Officer struct {
	ID           string
	DepartmentID string
	Name         string
}
