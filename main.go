// Project Structure Overview
/*
intake-backend/
├── cmd/
│   └── server/
│       └── main.go
├── internal/
│   ├── config/
│   │   ├── config.go
│   │   └── database.go
│   ├── models/
│   │   ├── common.go
│   │   ├── taxonomy.go
│   │   ├── case.go
│   │   ├── document.go
│   │   └── job.go
│   ├── taxonomy/
│   │   ├── store.go
│   │   └── cache.go
│   ├── jobs/
│   │   ├── repo.go
│   │   └── worker.go
│   ├── services/
│   │   ├── intake_service.go
│   │   ├── document_service.go
│   │   ├── template_service.go
│   │   ├── storage_service.go
│   │   ├── notification_service.go
│   │   ├── retry.go
│   │   └── errors.go
│   ├── handlers/
│   │   ├── intake.go
│   │   └── taxonomy.go
│   ├── middleware/
│   │   ├── cors.go
│   │   ├── rate_limit.go
│   │   └── logging.go
│   ├── database/
│   │   ├── connection.go
│   │   └── seed.go
│   ├── utils/
│   │   ├── validator.go
│   │   ├── pagination.go
│   │   └── response.go
│   └── router/
│       └── router.go
├── go.mod
└── go.sum
*/

package intake

// This file shows the project structure and main entry point
// The actual implementation will be in separate files as shown in the structure above
