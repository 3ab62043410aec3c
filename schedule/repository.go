package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alwitt/livetransit/common"
	"github.com/apex/log"

	// SQLite driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

// ErrNotFound no schedule row matches the requested ID
var ErrNotFound = errors.New("schedule entry not found")

// Route one row of the GTFS routes table
type Route struct {
	ID        string `json:"route_id"`
	AgencyID  string `json:"agency_id,omitempty"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Type      int    `json:"route_type"`
	Color     string `json:"route_color,omitempty"`
	TextColor string `json:"route_text_color,omitempty"`
}

// Stop one row of the GTFS stops table
type Stop struct {
	ID            string  `json:"stop_id"`
	Code          string  `json:"stop_code,omitempty"`
	Name          string  `json:"stop_name"`
	Lat           float64 `json:"stop_lat"`
	Lon           float64 `json:"stop_lon"`
	ParentStation string  `json:"parent_station,omitempty"`
}

// Repository read only access to GTFS static reference data
type Repository interface {
	// ListRoutes fetch every route, ordered by route ID
	ListRoutes(ctxt context.Context) ([]Route, error)
	// GetRoute fetch one route
	GetRoute(ctxt context.Context, routeID string) (Route, error)
	// GetStop fetch one stop
	GetStop(ctxt context.Context, stopID string) (Stop, error)
	// Close release the database
	Close() error
}

const (
	routeColumns = `route_id, COALESCE(agency_id, ''), COALESCE(route_short_name, ''),
	COALESCE(route_long_name, ''), COALESCE(route_type, 0), COALESCE(route_color, ''),
	COALESCE(route_text_color, '')`

	listRoutesQuery = `SELECT ` + routeColumns + ` FROM routes ORDER BY route_id`

	getRouteQuery = `SELECT ` + routeColumns + ` FROM routes WHERE route_id = ?`

	getStopQuery = `SELECT stop_id, COALESCE(stop_code, ''), COALESCE(stop_name, ''),
	COALESCE(stop_lat, 0), COALESCE(stop_lon, 0), COALESCE(parent_station, '')
	FROM stops WHERE stop_id = ?`
)

// sqlRepository implements Repository over database/sql
type sqlRepository struct {
	common.Component
	db *sql.DB
}

// GetRepository define a Repository over an open database
func GetRepository(db *sql.DB, instance string) Repository {
	return &sqlRepository{
		Component: common.Component{
			LogTags: log.Fields{
				"module": "schedule", "component": "repository", "instance": instance,
			},
		},
		db: db,
	}
}

// OpenSQLite open a GTFS static SQLite database read only
func OpenSQLite(ctxt context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	pingCtxt, cancel := context.WithTimeout(ctxt, time.Second*5)
	defer cancel()
	if err := db.PingContext(pingCtxt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping schedule database: %w", err)
	}
	return db, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoute(row rowScanner) (Route, error) {
	var route Route
	err := row.Scan(
		&route.ID,
		&route.AgencyID,
		&route.ShortName,
		&route.LongName,
		&route.Type,
		&route.Color,
		&route.TextColor,
	)
	return route, err
}

// ListRoutes fetch every route
func (r *sqlRepository) ListRoutes(ctxt context.Context) ([]Route, error) {
	rows, err := r.db.QueryContext(ctxt, listRoutesQuery)
	if err != nil {
		log.WithError(err).WithFields(r.LogTags).Error("Route listing failed")
		return nil, err
	}
	defer rows.Close()

	routes := []Route{}
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			log.WithError(err).WithFields(r.LogTags).Error("Unable to parse route row")
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// GetRoute fetch one route
func (r *sqlRepository) GetRoute(ctxt context.Context, routeID string) (Route, error) {
	route, err := scanRoute(r.db.QueryRowContext(ctxt, getRouteQuery, routeID))
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, ErrNotFound
	} else if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf("Route '%s' lookup failed", routeID)
		return Route{}, err
	}
	return route, nil
}

// GetStop fetch one stop
func (r *sqlRepository) GetStop(ctxt context.Context, stopID string) (Stop, error) {
	var stop Stop
	err := r.db.QueryRowContext(ctxt, getStopQuery, stopID).Scan(
		&stop.ID, &stop.Code, &stop.Name, &stop.Lat, &stop.Lon, &stop.ParentStation,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Stop{}, ErrNotFound
	} else if err != nil {
		log.WithError(err).WithFields(r.LogTags).Errorf("Stop '%s' lookup failed", stopID)
		return Stop{}, err
	}
	return stop, nil
}

// Close release the database
func (r *sqlRepository) Close() error {
	return r.db.Close()
}
