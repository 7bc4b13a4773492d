package types

// Migration is a named SQL script with "-- +migrate Up" and "-- +migrate Down" sections
type Migration struct {
	ID  string
	SQL string
}
