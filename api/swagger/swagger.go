package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Edu Authoring API",
        "description": "Activity authoring wizard and AI-assisted correction pipeline",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "Authorization"
        }
    },
    "tags": [
        {
            "name": "Templates",
            "description": "Activity template catalog"
        },
        {
            "name": "Wizard",
            "description": "Activity authoring sessions"
        },
        {
            "name": "Activities",
            "description": "Committed activities, statistics and grade sheets"
        },
        {
            "name": "Submissions",
            "description": "Student answer intake"
        },
        {
            "name": "Corrections",
            "description": "AI correction and teacher triage"
        },
        {
            "name": "Ops",
            "description": "Operations for managers"
        }
    ],
    "paths": {
        "/templates": {
            "get": {
                "tags": [
                    "Templates"
                ],
                "summary": "List activity templates",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Start an authoring session",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}": {
            "get": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Get an authoring session",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown session",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            },
            "delete": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Abandon the draft and restart the session",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/class": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Pick the class for the draft",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SelectClassRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown class",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Wrong step",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/mode": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Pick manual, template or AI authoring",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/SelectModeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Wrong step",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/template": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Pre-fill the draft from a template",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/ApplyTemplateRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Unknown template",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/generate": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Generate a whole activity from a brief",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateActivityRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Generation started",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/questions/generate": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Generate question drafts",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/GenerateQuestionsRequest"
                        }
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Generation started",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/generation": {
            "delete": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Abandon an in-flight generation",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/draft": {
            "patch": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Edit draft fields",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/DraftPatch"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Generation in flight",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/questions": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Add a question to the draft",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/QuestionRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid question",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/questions/{questionId}": {
            "patch": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Edit a draft question",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "questionId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/QuestionPatch"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            },
            "delete": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Remove a draft question",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "questionId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/review": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Move the draft to review",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/wizard/sessions/{id}/submit": {
            "post": {
                "tags": [
                    "Wizard"
                ],
                "summary": "Validate and commit the draft",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Committed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "400": {
                        "description": "Invalid draft",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "404": {
                        "description": "Roster rejected the class",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/classes/{classId}/activities": {
            "get": {
                "tags": [
                    "Activities"
                ],
                "summary": "List activities of a class",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "classId",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}": {
            "get": {
                "tags": [
                    "Activities"
                ],
                "summary": "Get a committed activity",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/submissions": {
            "get": {
                "tags": [
                    "Submissions"
                ],
                "summary": "List submissions of an activity",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "status",
                        "in": "query",
                        "type": "array",
                        "items": {
                            "type": "string"
                        },
                        "collectionFormat": "multi"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            },
            "post": {
                "tags": [
                    "Submissions"
                ],
                "summary": "Hand in answers",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/RecordAnswersRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Already submitted",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Past the due date",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/submissions/missing": {
            "post": {
                "tags": [
                    "Submissions"
                ],
                "summary": "Record that a student delivered nothing",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/MarkNotSubmittedRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/stats": {
            "get": {
                "tags": [
                    "Activities"
                ],
                "summary": "Submission and grading statistics",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/export": {
            "get": {
                "tags": [
                    "Activities"
                ],
                "summary": "Download the grade sheet",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "pdf"
                        ]
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Grade sheet",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                },
                "produces": [
                    "text/csv",
                    "application/pdf"
                ]
            }
        },
        "/activities/{id}/corrections": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Correct every pending submission",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/corrections/async": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Queue a batch correction",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "202": {
                        "description": "Queued",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "503": {
                        "description": "Queue full",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/submissions/{id}/correct": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Run AI correction on one submission",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "502": {
                        "description": "Grading failed",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/submissions/{id}/confirm": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Accept the AI grade as final",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Finalized",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "412": {
                        "description": "Not confirmable",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/submissions/{id}/review": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Send a submission to manual review",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/submissions/{id}/finalize": {
            "post": {
                "tags": [
                    "Corrections"
                ],
                "summary": "Record the teacher's final grade",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/FinalizeRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "409": {
                        "description": "Finalized",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/ops/cache": {
            "delete": {
                "tags": [
                    "Ops"
                ],
                "summary": "Drop cached generation results",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "204": {
                        "description": "Flushed"
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/ops/metrics/summary": {
            "get": {
                "tags": [
                    "Ops"
                ],
                "summary": "In-process metrics and queue counters",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/activities/{id}/export/link": {
            "post": {
                "tags": [
                    "Activities"
                ],
                "summary": "Archive the grade sheet and return a signed download link",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "parameters": [
                    {
                        "name": "id",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    },
                    {
                        "name": "format",
                        "in": "query",
                        "type": "string",
                        "enum": [
                            "csv",
                            "pdf"
                        ]
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Link created",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    },
                    "401": {
                        "description": "Missing or invalid token"
                    },
                    "403": {
                        "description": "Role not allowed"
                    }
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": [
                    "Activities"
                ],
                "summary": "Download an archived grade sheet by signed token",
                "produces": [
                    "text/csv",
                    "application/pdf"
                ],
                "parameters": [
                    {
                        "name": "token",
                        "in": "path",
                        "required": true,
                        "type": "string"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Grade sheet",
                        "schema": {
                            "type": "file"
                        }
                    },
                    "404": {
                        "description": "Link invalid or expired",
                        "schema": {
                            "$ref": "#/definitions/ResponseEnvelope"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "SelectClassRequest": {
            "type": "object",
            "properties": {
                "class_id": {
                    "type": "string"
                }
            },
            "required": [
                "class_id"
            ]
        },
        "SelectModeRequest": {
            "type": "object",
            "properties": {
                "mode": {
                    "type": "string",
                    "enum": [
                        "manual",
                        "template",
                        "ai"
                    ]
                }
            },
            "required": [
                "mode"
            ]
        },
        "ApplyTemplateRequest": {
            "type": "object",
            "properties": {
                "template_id": {
                    "type": "string"
                }
            },
            "required": [
                "template_id"
            ]
        },
        "GenerateActivityRequest": {
            "type": "object",
            "properties": {
                "brief": {
                    "type": "string"
                }
            },
            "required": [
                "brief"
            ]
        },
        "GenerateQuestionsRequest": {
            "type": "object",
            "properties": {
                "brief": {
                    "type": "string"
                },
                "question_types": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "difficulty": {
                    "type": "string"
                },
                "count": {
                    "type": "integer"
                },
                "replace": {
                    "type": "boolean"
                }
            },
            "required": [
                "brief",
                "question_types"
            ]
        },
        "DraftPatch": {
            "type": "object",
            "properties": {
                "title": {
                    "type": "string"
                },
                "description": {
                    "type": "string"
                },
                "instructions": {
                    "type": "string"
                },
                "type": {
                    "type": "string"
                },
                "due_date": {
                    "type": "string"
                },
                "due_time": {
                    "type": "string"
                },
                "max_grade": {
                    "type": "number"
                },
                "allow_late_submission": {
                    "type": "boolean"
                },
                "enable_ai_correction": {
                    "type": "boolean"
                },
                "require_file_upload": {
                    "type": "boolean"
                }
            }
        },
        "QuestionRequest": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "prompt": {
                    "type": "string"
                },
                "options": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "correct_answer": {
                    "type": "string"
                },
                "points": {
                    "type": "number"
                },
                "difficulty": {
                    "type": "string"
                }
            }
        },
        "QuestionPatch": {
            "type": "object",
            "properties": {
                "type": {
                    "type": "string"
                },
                "prompt": {
                    "type": "string"
                },
                "options": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "correct_answer": {
                    "type": "string"
                },
                "points": {
                    "type": "number"
                },
                "difficulty": {
                    "type": "string"
                }
            }
        },
        "RecordAnswersRequest": {
            "type": "object",
            "properties": {
                "answers": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "question_id": {
                                "type": "string"
                            },
                            "answer_text": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "MarkNotSubmittedRequest": {
            "type": "object",
            "properties": {
                "student_id": {
                    "type": "string"
                },
                "student_name": {
                    "type": "string"
                }
            },
            "required": [
                "student_id"
            ]
        },
        "FinalizeRequest": {
            "type": "object",
            "properties": {
                "grade": {
                    "type": "number"
                },
                "feedback": {
                    "type": "string"
                }
            },
            "required": [
                "grade"
            ]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                },
                "status": {
                    "type": "integer"
                },
                "fields": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                }
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object"
                },
                "error": {
                    "$ref": "#/definitions/APIError"
                },
                "meta": {
                    "type": "object"
                }
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
