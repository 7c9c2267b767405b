package database

import "time"

// Report is a single pothole sighting
type Report struct {
	ID         string    `db:"id" json:"id"`
	Address    string    `db:"address" json:"address"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	ImagePath  string    `db:"image_path" json:"image_path"`
	Detections int       `db:"detections" json:"detections"`
	TxHash     string    `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
