package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable API",
        "description": "Course timetabling service: catalog management, asynchronous scheduling runs and exports",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "API token issuance"},
        {"name": "Professors", "description": "Professor catalog and availability"},
        {"name": "Class Groups", "description": "Class group catalog"},
        {"name": "Rooms", "description": "Room catalog"},
        {"name": "Sections", "description": "Course section catalog"},
        {"name": "Runs", "description": "Timetable run lifecycle"},
        {"name": "Exports", "description": "Result export jobs"},
        {"name": "Imports", "description": "Bulk CSV catalog uploads"},
        {"name": "Settings", "description": "Scheduler configuration"}
    ],
    "paths": {
        "/auth/token": {
            "post": {
                "tags": ["Auth"],
                "summary": "Issue access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid API key"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Inspect current token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        },
        "/professors": {
            "get": {
                "tags": ["Professors"],
                "summary": "List professors",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Professors"],
                "summary": "Create professor",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateProfessorRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Code already used"}
                }
            }
        },
        "/professors/{id}": {
            "get": {
                "tags": ["Professors"],
                "summary": "Get professor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Professors"],
                "summary": "Update professor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateProfessorRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Professors"],
                "summary": "Deactivate professor",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/professors/{id}/availability": {
            "get": {
                "tags": ["Professors"],
                "summary": "Get availability grid",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Professors"],
                "summary": "Replace availability grid",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/class-groups": {
            "get": {
                "tags": ["Class Groups"],
                "summary": "List class groups",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "regime", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Class Groups"],
                "summary": "Create class group",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateClassGroupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/class-groups/{id}": {
            "get": {
                "tags": ["Class Groups"],
                "summary": "Get class group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Class Groups"],
                "summary": "Update class group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateClassGroupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Class Groups"],
                "summary": "Deactivate class group",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/rooms": {
            "get": {
                "tags": ["Rooms"],
                "summary": "List rooms",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "knowledgeArea", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Rooms"],
                "summary": "Create room",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRoomRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rooms/{id}": {
            "get": {
                "tags": ["Rooms"],
                "summary": "Get room",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Rooms"],
                "summary": "Update room",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRoomRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Rooms"],
                "summary": "Delete room",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Room is referenced by stored assignments"}
                }
            }
        },
        "/sections": {
            "get": {
                "tags": ["Sections"],
                "summary": "List sections",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "professorId", "in": "query", "type": "string"},
                    {"name": "classGroupId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sections"],
                "summary": "Create section",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}": {
            "get": {
                "tags": ["Sections"],
                "summary": "Get section",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Sections"],
                "summary": "Update section",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Sections"],
                "summary": "Deactivate section",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/runs": {
            "get": {
                "tags": ["Runs"],
                "summary": "List runs",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["QUEUED", "RUNNING", "FINISHED", "FAILED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Runs"],
                "summary": "Queue a timetable run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRunRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid scheduler configuration"}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "tags": ["Runs"],
                "summary": "Get run detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "delete": {
                "tags": ["Runs"],
                "summary": "Delete run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Run is still executing"}
                }
            }
        },
        "/runs/{id}/assignments": {
            "get": {
                "tags": ["Runs"],
                "summary": "List run assignments",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not finished"}
                }
            }
        },
        "/runs/{id}/unassigned": {
            "get": {
                "tags": ["Runs"],
                "summary": "List unassigned sections",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not finished"}
                }
            }
        },
        "/runs/{id}/export": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue an export of a finished run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run not finished"}
                }
            }
        },
        "/export/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Get export job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/export/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download export file",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"},
                    "409": {"description": "Export not finished"}
                }
            }
        },
        "/import/{entity}": {
            "post": {
                "tags": ["Imports"],
                "summary": "Upload a catalog CSV",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "entity", "in": "path", "required": true, "type": "string", "enum": ["professors", "class-groups", "rooms", "sections", "availability"]},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error with row context"},
                    "413": {"description": "File exceeds upload size limit"}
                }
            }
        },
        "/settings": {
            "get": {
                "tags": ["Settings"],
                "summary": "List scheduler settings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/settings/bulk": {
            "put": {
                "tags": ["Settings"],
                "summary": "Update several settings atomically",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkUpdateSettingsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Resulting grid would be invalid"}
                }
            }
        },
        "/settings/{key}": {
            "get": {
                "tags": ["Settings"],
                "summary": "Get one setting",
                "parameters": [
                    {"name": "key", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Settings"],
                "summary": "Update one setting",
                "parameters": [
                    {"name": "key", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSettingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Resulting grid would be invalid"}
                }
            }
        }
    },
    "definitions": {
        "TokenRequest": {
            "type": "object",
            "properties": {
                "api_key": {"type": "string"}
            },
            "required": ["api_key"]
        },
        "Professor": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "ClassGroup": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "year": {"type": "integer"},
                "regime": {"type": "string", "enum": ["day", "night", "unrestricted"]},
                "priority_class": {"type": "integer"},
                "active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "Room": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "type": {"type": "string"},
                "knowledge_area": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "Section": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "code": {"type": "string"},
                "course_name": {"type": "string"},
                "professor_id": {"type": "string"},
                "class_group_id": {"type": "string"},
                "room_type": {"type": "string"},
                "knowledge_area": {"type": "string"},
                "duration": {"type": "integer"},
                "active": {"type": "boolean"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "AvailabilitySlot": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "professor_id": {"type": "string"},
                "day": {"type": "integer"},
                "period": {"type": "integer"},
                "weight": {"type": "integer"}
            }
        },
        "CreateProfessorRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "full_name": {"type": "string"},
                "email": {"type": "string"}
            },
            "required": ["code", "full_name"]
        },
        "UpdateProfessorRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "full_name": {"type": "string"},
                "email": {"type": "string"},
                "active": {"type": "boolean"}
            },
            "required": ["code", "full_name"]
        },
        "CreateClassGroupRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "year": {"type": "integer"},
                "regime": {"type": "string", "enum": ["day", "night", "unrestricted"]},
                "priority_class": {"type": "integer"}
            },
            "required": ["code", "year"]
        },
        "UpdateClassGroupRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "year": {"type": "integer"},
                "regime": {"type": "string", "enum": ["day", "night", "unrestricted"]},
                "priority_class": {"type": "integer"},
                "active": {"type": "boolean"}
            },
            "required": ["code", "year"]
        },
        "CreateRoomRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "type": {"type": "string"},
                "knowledge_area": {"type": "string"}
            },
            "required": ["code", "type", "knowledge_area"]
        },
        "UpdateRoomRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "type": {"type": "string"},
                "knowledge_area": {"type": "string"}
            },
            "required": ["code", "type", "knowledge_area"]
        },
        "CreateSectionRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "course_name": {"type": "string"},
                "professor_id": {"type": "string"},
                "class_group_id": {"type": "string"},
                "room_type": {"type": "string"},
                "knowledge_area": {"type": "string"},
                "duration": {"type": "integer"}
            },
            "required": ["code", "course_name", "professor_id", "class_group_id", "room_type", "knowledge_area", "duration"]
        },
        "UpdateSectionRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "course_name": {"type": "string"},
                "professor_id": {"type": "string"},
                "class_group_id": {"type": "string"},
                "room_type": {"type": "string"},
                "knowledge_area": {"type": "string"},
                "duration": {"type": "integer"},
                "active": {"type": "boolean"}
            },
            "required": ["code", "course_name", "professor_id", "class_group_id", "room_type", "knowledge_area", "duration"]
        },
        "ReplaceAvailabilityRequest": {
            "type": "object",
            "properties": {
                "slots": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "day": {"type": "integer"},
                            "period": {"type": "integer"},
                            "weight": {"type": "integer"}
                        }
                    }
                }
            }
        },
        "CreateRunRequest": {
            "type": "object",
            "properties": {
                "seed": {"type": "integer"},
                "maxIterations": {"type": "integer"},
                "sampleSize": {"type": "integer"},
                "initialTemperature": {"type": "number"},
                "coolingRate": {"type": "number"},
                "minTemperature": {"type": "number"}
            }
        },
        "RunResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "RUNNING", "FINISHED", "FAILED"]},
                "seed": {"type": "integer"},
                "assigned_count": {"type": "integer"},
                "unassigned_count": {"type": "integer"},
                "created_at": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "AssignmentDetail": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "run_id": {"type": "string"},
                "section_id": {"type": "string"},
                "section_code": {"type": "string"},
                "course_name": {"type": "string"},
                "professor_id": {"type": "string"},
                "professor_name": {"type": "string"},
                "class_group_id": {"type": "string"},
                "group_code": {"type": "string"},
                "room_id": {"type": "string"},
                "room_code": {"type": "string"},
                "day": {"type": "integer"},
                "start_period": {"type": "integer"},
                "duration": {"type": "integer"},
                "score": {"type": "integer"}
            }
        },
        "UnassignedDetail": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "run_id": {"type": "string"},
                "section_id": {"type": "string"},
                "section_code": {"type": "string"},
                "course_name": {"type": "string"},
                "professor_name": {"type": "string"},
                "group_code": {"type": "string"},
                "reason": {"type": "string", "enum": ["no_room_of_required_category", "no_feasible_time_slot", "conflict_exhausted"]}
            }
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["assignments", "grid", "unassigned", "summary"]},
                "format": {"type": "string", "enum": ["csv", "pdf"]},
                "classGroupId": {"type": "string"},
                "professorId": {"type": "string"}
            },
            "required": ["type", "format"]
        },
        "ExportStatusResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "run_id": {"type": "string"},
                "type": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                "resultUrl": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "ImportSummary": {
            "type": "object",
            "properties": {
                "professors": {"type": "integer"},
                "class_groups": {"type": "integer"},
                "rooms": {"type": "integer"},
                "sections": {"type": "integer"},
                "availability": {"type": "integer"},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "SettingItem": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "value": {"type": "string"},
                "type": {"type": "string"},
                "description": {"type": "string"},
                "stored": {"type": "boolean"}
            }
        },
        "UpdateSettingRequest": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "value": {"type": "string"}
            },
            "required": ["key", "value"]
        },
        "BulkUpdateSettingsRequest": {
            "type": "object",
            "properties": {
                "items": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/UpdateSettingRequest"}
                }
            },
            "required": ["items"]
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
                "status": {"type": "integer"}
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
