package server

//go:generate swag init -g internal/server/swagger.go -o docs/swagger --outputTypes go

// @title AuditAI API
// @version 1.0
// @description Asynchronous security scans with live event streams, AI analysis and PDF reports.
// @contact.name AuditAI Maintainers
// @contact.url https://github.com/raysh454/auditai
// @BasePath /
