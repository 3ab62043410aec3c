// Package decoder turns raw feed frames into keyed telemetry entities.
//
// Text frames carry JSON documents, either a single entity or a GTFS-RT
// FeedMessage envelope with an "entity" array. Binary frames carry GTFS-RT
// protobuf FeedMessages. Both are normalized into the same Document tree
// (camelCase field names) so the rest of the system never cares which wire
// format a feed uses.
package decoder
