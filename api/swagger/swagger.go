package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Timetable API",
        "description": "Timetable generation and substitute assignment for university batches",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetable", "description": "Generation runs and read views"},
        {"name": "Absences", "description": "Substitute assignment"},
        {"name": "Exports", "description": "Rendered timetable downloads"},
        {"name": "System", "description": "Probes and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["System"],
                "summary": "Readiness probe for Postgres and Redis",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is down"}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Process metrics snapshot",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/api/v1/timetable/generate": {
            "post": {
                "tags": ["Timetable"],
                "summary": "Generate timetables for batches",
                "description": "Existing entries of the requested batches are replaced. Hours that cannot be placed are listed in the report.",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "200": {"description": "Completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload or constraints", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Generation queue full", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/runs/{id}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Get a generation run",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown or expired run", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/batches/{id}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Get a batch timetable",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown batch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/faculty/{id}": {
            "get": {
                "tags": ["Timetable"],
                "summary": "Get a lecturer timetable",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown faculty", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/timetable/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Export a batch or faculty timetable",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ExportTimetableRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a rendered export",
                "produces": ["application/octet-stream"],
                "parameters": [{"in": "path", "name": "token", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "File removed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/absences/{id}/substitute": {
            "post": {
                "tags": ["Absences"],
                "summary": "Assign a substitute for an absence",
                "description": "success=false with a message means nobody qualified; the absence stays pending.",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid absence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown absence", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Absence closed or slot changed concurrently", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Constraints": {
            "type": "object",
            "properties": {
                "startTime": {"type": "string", "example": "09:00"},
                "endTime": {"type": "string", "example": "17:00"},
                "periodDuration": {"type": "integer", "example": 50},
                "breakDuration": {"type": "integer", "example": 10},
                "lunchBreakStart": {"type": "string", "example": "13:00"},
                "lunchBreakDuration": {"type": "integer", "example": 60},
                "maxHoursPerDay": {"type": "integer", "example": 6},
                "maxConsecutiveHours": {"type": "integer", "example": 3},
                "noBackToBackLabs": {"type": "boolean"}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["batchIds"],
            "properties": {
                "batchIds": {"type": "array", "items": {"type": "string"}},
                "constraints": {"$ref": "#/definitions/Constraints"},
                "async": {"type": "boolean"}
            }
        },
        "ExportTimetableRequest": {
            "type": "object",
            "required": ["scope", "id", "format"],
            "properties": {
                "scope": {"type": "string", "enum": ["batch", "faculty"]},
                "id": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf", "xlsx", "ics"]}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
