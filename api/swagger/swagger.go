package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Study Planner API",
        "description": "Generates weekly study plans from a lesson catalog and keeps their dates in sync with the student's weekdays.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "StudyPlans", "description": "Study plan generation and scheduling"},
        {"name": "Admin", "description": "Operational endpoints"}
    ],
    "paths": {
        "/study-plans": {
            "post": {
                "tags": ["StudyPlans"],
                "summary": "Generate a study plan",
                "description": "Replaces the caller's plan. Responds 422 with the missing hours when the content does not fit the period.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateStudyPlanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient time", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Timeout or transient store error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/current": {
            "get": {
                "tags": ["StudyPlans"],
                "summary": "Get the caller's active study plan",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "No plan", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/{id}": {
            "delete": {
                "tags": ["StudyPlans"],
                "summary": "Delete a study plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/study-plans/{id}/items": {
            "get": {
                "tags": ["StudyPlans"],
                "summary": "List schedule items of a plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/{id}/items/{itemId}": {
            "patch": {
                "tags": ["StudyPlans"],
                "summary": "Mark a schedule item as completed or pending",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "itemId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateItemRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/{id}/weekdays": {
            "get": {
                "tags": ["StudyPlans"],
                "summary": "Get the weekday distribution of a plan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["StudyPlans"],
                "summary": "Replace the weekday distribution of a plan",
                "description": "Weekdays use 0 for Sunday through 6 for Saturday. Every item date is recalculated.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SetWeekdaysRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/{id}/recalculate-dates": {
            "post": {
                "tags": ["StudyPlans"],
                "summary": "Recalculate item dates from the weekday distribution",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/study-plans/{id}/export": {
            "get": {
                "tags": ["StudyPlans"],
                "summary": "Export a study plan",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/owners/{ownerId}/study-plan": {
            "get": {
                "tags": ["StudyPlans"],
                "summary": "Get the active study plan of an owner",
                "parameters": [
                    {"name": "ownerId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/catalog-cache": {
            "delete": {
                "tags": ["Admin"],
                "summary": "Drop cached catalog lessons",
                "responses": {
                    "204": {"description": "Invalidated"}
                }
            }
        }
    },
    "definitions": {
        "VacationRequest": {
            "type": "object",
            "properties": {
                "start": {"type": "string", "format": "date"},
                "end": {"type": "string", "format": "date"}
            },
            "required": ["start", "end"]
        },
        "GenerateStudyPlanRequest": {
            "type": "object",
            "properties": {
                "owner_id": {"type": "string"},
                "course_id": {"type": "string"},
                "name": {"type": "string"},
                "start_date": {"type": "string", "format": "date"},
                "end_date": {"type": "string", "format": "date"},
                "subject_ids": {"type": "array", "items": {"type": "string"}},
                "module_ids": {"type": "array", "items": {"type": "string"}},
                "min_priority": {"type": "integer", "minimum": 1},
                "vacations": {"type": "array", "items": {"$ref": "#/definitions/VacationRequest"}},
                "days_per_week": {"type": "integer", "minimum": 1, "maximum": 7},
                "hours_per_day": {"type": "number", "maximum": 24},
                "mode": {"type": "string", "enum": ["parallel", "sequential"]},
                "front_order": {"type": "array", "items": {"type": "string"}},
                "playback_speed": {"type": "number", "maximum": 4},
                "exclude_completed": {"type": "boolean"}
            },
            "required": ["start_date", "end_date", "subject_ids", "min_priority", "days_per_week", "hours_per_day", "mode"]
        },
        "SetWeekdaysRequest": {
            "type": "object",
            "properties": {
                "weekdays": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}}
            },
            "required": ["weekdays"]
        },
        "UpdateItemRequest": {
            "type": "object",
            "properties": {
                "completed": {"type": "boolean"}
            },
            "required": ["completed"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
