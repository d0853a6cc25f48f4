// Package swagger registers the OpenAPI document of the auditai HTTP API.
// Regenerate with go generate ./internal/server.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AuditAI Maintainers",
            "url": "https://github.com/raysh454/auditai"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/scan": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Start a security scan",
                "parameters": [
                    {
                        "description": "Target and authorization acknowledgement",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.StartScanRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.StartScanResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scan/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Get a scan result",
                "parameters": [
                    {"type": "string", "description": "Scan id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.ScanResult"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.PendingResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.FailedResponse"}}
                }
            }
        },
        "/scan/{id}/events": {
            "get": {
                "description": "Server-sent events: \"log\" events, then one \"done\" event, then the stream closes.",
                "produces": ["text/event-stream"],
                "tags": ["scans"],
                "summary": "Stream scan events",
                "parameters": [
                    {"type": "string", "description": "Scan id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "event stream", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scan/{id}/report.pdf": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["reports"],
                "summary": "Download the PDF report of a scan",
                "parameters": [
                    {"type": "string", "description": "Scan id", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Analysis id to include", "name": "analysis", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans": {
            "get": {
                "description": "Live scans merged with archived ones, newest first. Results are omitted.",
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "List recent scans",
                "parameters": [
                    {"type": "integer", "default": 50, "description": "Maximum entries", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/jobs.Info"}}}
                }
            }
        },
        "/api/ai/providers/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "AI provider availability",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"$ref": "#/definitions/provider.Status"}}}
                }
            }
        },
        "/analysis": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Start an AI analysis of a finished scan",
                "parameters": [
                    {
                        "description": "Scan and provider",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/server.StartAnalysisRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.StartAnalysisResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/analysis/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Get an analysis result",
                "parameters": [
                    {"type": "string", "description": "Analysis id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.AnalysisResult"}},
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/server.PendingResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.FailedResponse"}}
                }
            }
        },
        "/analysis/{id}/events": {
            "get": {
                "description": "Server-sent events; raw model output arrives as \"log\" events with level \"stream\".",
                "produces": ["text/event-stream"],
                "tags": ["analysis"],
                "summary": "Stream analysis events",
                "parameters": [
                    {"type": "string", "description": "Analysis id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "event stream", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/analysis/{id}/report.pdf": {
            "get": {
                "produces": ["application/pdf"],
                "tags": ["reports"],
                "summary": "Download the PDF report of a scan with its analysis",
                "parameters": [
                    {"type": "string", "description": "Analysis id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List live jobs",
                "parameters": [
                    {"type": "string", "description": "scan or analysis", "name": "kind", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/jobs.Info"}}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get a live job",
                "parameters": [
                    {"type": "string", "description": "Job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/jobs.Info"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/ws/jobs/{id}": {
            "get": {
                "description": "One JSON event per message; the server closes after the done event.",
                "tags": ["jobs"],
                "summary": "Stream job events over a WebSocket",
                "parameters": [
                    {"type": "string", "description": "Job id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {}
            }
        }
    },
    "definitions": {
        "jobs.Info": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["scan", "analysis"]},
                "status": {"type": "string", "enum": ["pending", "running", "done", "error", "blocked"]},
                "target": {"type": "string"},
                "scan_id": {"type": "string"},
                "provider": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "started_at": {"type": "string", "format": "date-time"},
                "ended_at": {"type": "string", "format": "date-time"},
                "error_kind": {"type": "string"},
                "error_detail": {"type": "string"},
                "blocking_mechanism": {"type": "string"},
                "raw_output": {"type": "string"},
                "result": {"type": "object"}
            }
        },
        "model.Finding": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "severity": {"type": "string", "enum": ["Critical", "High", "Medium", "Low", "Info"]},
                "category": {"type": "string"},
                "impact": {"type": "string"},
                "recommendation": {"type": "string"},
                "evidence": {"type": "string"}
            }
        },
        "model.ScanResult": {
            "type": "object",
            "properties": {
                "target": {"type": "string"},
                "grade": {"type": "string"},
                "score": {"type": "integer"},
                "scan_status": {"type": "string", "enum": ["completed", "blocked"]},
                "blocking_mechanism": {"type": "string"},
                "visibility": {"type": "string", "enum": ["good", "partial", "limited", "poor", "none"]},
                "findings": {"type": "array", "items": {"$ref": "#/definitions/model.Finding"}},
                "pages": {"type": "array", "items": {"type": "string"}},
                "scanned_at": {"type": "string", "format": "date-time"},
                "response_time_ms": {"type": "integer"}
            }
        },
        "model.Vulnerability": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "severity": {"type": "string"},
                "area": {"type": "string"},
                "explanation_simple": {"type": "string"},
                "fix_recommendation": {"type": "string"}
            }
        },
        "model.AnalysisResult": {
            "type": "object",
            "properties": {
                "globalScore": {
                    "type": "object",
                    "properties": {"letter": {"type": "string"}, "numeric": {"type": "integer"}}
                },
                "overallRiskLevel": {"type": "string"},
                "executiveSummary": {"type": "string"},
                "top3Vulnerabilities": {"type": "array", "items": {"$ref": "#/definitions/model.Vulnerability"}},
                "siteMap": {
                    "type": "object",
                    "properties": {
                        "total_pages": {"type": "integer"},
                        "pages": {"type": "array", "items": {"type": "string"}}
                    }
                },
                "provider": {"type": "string"},
                "model": {"type": "string"}
            }
        },
        "provider.Status": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "kind": {"type": "string", "enum": ["local", "cloud"]},
                "available": {"type": "boolean"},
                "model": {"type": "string"},
                "configured": {"type": "boolean"},
                "base_url": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "scan not found"},
                "error_code": {"type": "string", "example": "NOT_FOUND"}
            }
        },
        "server.FailedResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "error"},
                "error_kind": {"type": "string", "example": "provider_unavailable"},
                "detail": {"type": "string"},
                "raw_output": {"type": "string"}
            }
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "server.PendingResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "running"}}
        },
        "server.StartAnalysisRequest": {
            "type": "object",
            "properties": {
                "scan_id": {"type": "string"},
                "provider": {"type": "string", "example": "ollama"}
            }
        },
        "server.StartAnalysisResponse": {
            "type": "object",
            "properties": {"analysis_id": {"type": "string"}}
        },
        "server.StartScanRequest": {
            "type": "object",
            "properties": {
                "target": {"type": "string", "example": "https://example.com"},
                "authorized": {"type": "boolean", "example": true}
            }
        },
        "server.StartScanResponse": {
            "type": "object",
            "properties": {"scan_id": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "AuditAI API",
	Description:      "Asynchronous security scans with live event streams, AI analysis and PDF reports.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
