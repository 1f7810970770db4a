package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document store API.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>quix - Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the entity endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "quix", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "schemas": {
      "Document": { "type": "object", "additionalProperties": true, "properties": { "id": {"type":"string"}, "entityName": {"type":"string"}, "createdAt": {"type":"string"}, "updatedAt": {"type":"string"} } },
      "Query": { "type": "object", "properties": { "filter": {"type":"object"}, "sort": {"type":"array","items":{"type":"string"}}, "limit": {"type":"integer"}, "continuationToken": {"type":"string"} } }
    }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/api/v1/entities/{type}": {
      "post": {
        "summary": "Create a document (id generated unless ?id= is given)",
        "parameters": [ {"name":"type","in":"path","required":true,"schema":{"type":"string"}}, {"name":"id","in":"query","schema":{"type":"string"}} ],
        "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Document"} } } },
        "responses": { "201": { "description": "stored document" }, "400": { "description": "validation error" }, "409": { "description": "id already exists" } }
      }
    },
    "/api/v1/entities/{type}/{id}": {
      "get": { "summary": "Read a document", "parameters": [ {"name":"pk","in":"query","schema":{"type":"string"}}, {"name":"pkJson","in":"query","schema":{"type":"string"}} ], "responses": { "200": { "description": "document" }, "404": { "description": "absent" } } },
      "put": { "summary": "Replace a document", "responses": { "200": { "description": "stored document" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a document", "responses": { "204": { "description": "deleted" }, "404": { "description": "not found" } } }
    },
    "/api/v1/entities/{type}/batch": {
      "post": { "summary": "Read many ids from one partition", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"partitionKey":{},"ids":{"type":"array","items":{"type":"string"}}}} } } }, "responses": { "200": { "description": "map of id to document" } } }
    },
    "/api/v1/entities/{type}/query": {
      "post": { "summary": "Query one page", "requestBody": { "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Query"} } } }, "responses": { "200": { "description": "items and continuationToken" } } }
    },
    "/api/v1/entities/{type}/export": {
      "post": { "summary": "Export all matches as NDJSON to object storage", "responses": { "202": { "description": "export key and URL" }, "501": { "description": "export storage not configured" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
