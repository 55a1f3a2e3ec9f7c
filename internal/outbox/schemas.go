package outbox

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	"progress.updated": {
		Schema: progressUpdatedSchema,
	},
	"challenge.synced": {
		Schema: challengeSyncedSchema,
	},
}

const progressUpdatedSchema = `{
  "type": "object",
  "title": "ProgressUpdated",
  "properties": {
    "challenge_id": {"type": "string"},
    "user_id": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "value": {"type": "integer"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["challenge_id", "user_id", "day", "value", "updated_at"],
  "additionalProperties": false
}`

const challengeSyncedSchema = `{
  "type": "object",
  "title": "ChallengeSynced",
  "properties": {
    "challenge_id": {"type": "string"},
    "user_id": {"type": "string"},
    "days_updated": {"type": "integer"},
    "activities_fetched": {"type": "integer"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["challenge_id", "user_id", "days_updated", "activities_fetched", "completed_at"],
  "additionalProperties": false
}`
