package domain

import "time"

// RoomStatus is the workshop stage a room is currently in.
type RoomStatus string

const (
	StatusFoundation      RoomStatus = "foundation"
	StatusDifferentiation RoomStatus = "differentiation"
	StatusApproach        RoomStatus = "approach"
	StatusCompleted       RoomStatus = "completed"
)

// Valid reports whether s is one of the known room stages.
func (s RoomStatus) Valid() bool {
	switch s {
	case StatusFoundation, StatusDifferentiation, StatusApproach, StatusCompleted:
		return true
	}
	return false
}

// Room is the shared workshop document, matching the server wire format.
// The server is the source of truth; the client replaces its copy wholesale
// after a foreign edit.
type Room struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Foundation      Foundation      `json:"foundation"`
	Differentiation Differentiation `json:"differentiation"`
	Approach        Approach        `json:"approach"`
	Status          RoomStatus      `json:"status"`
}

// Foundation is the first workshop stage: the basics everyone must agree on.
type Foundation struct {
	Customers   []string `json:"customers"`
	Problems    []string `json:"problems"`
	Competition []string `json:"competition"`
	Advantages  []string `json:"advantages"`
}

// Differentiation is the second stage: how the product stands apart.
type Differentiation struct {
	ClassicFactors []DifferentiationFactor `json:"classic_factors"`
	CustomFactors  []DifferentiationFactor `json:"custom_factors"`
	Matrix         Matrix2x2               `json:"matrix"`
	Principles     []string                `json:"principles"`
}

type DifferentiationFactor struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

type Matrix2x2 struct {
	XAxis           string            `json:"x_axis"`
	YAxis           string            `json:"y_axis"`
	Products        []ProductPosition `json:"products"`
	WinningQuadrant string            `json:"winning_quadrant"`
}

type ProductPosition struct {
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	IsUs bool    `json:"is_us"`
}

// Approach is the third stage: candidate paths and how they were judged.
type Approach struct {
	Paths        []Path      `json:"paths"`
	MagicLenses  []MagicLens `json:"magic_lenses"`
	SelectedPath string      `json:"selected_path"`
	Reasoning    string      `json:"reasoning"`
}

type Path struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
}

type MagicLens struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Evaluations []PathEvaluation `json:"evaluations"`
}

type PathEvaluation struct {
	PathID string  `json:"path_id"`
	Score  float64 `json:"score"`
	Notes  string  `json:"notes"`
}
