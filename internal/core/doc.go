// Package core provides the business logic of the freight-rate service.
//
// This package holds all domain orchestration independent of any UI or
// transport layer. It can be used by web handlers, the CLI, or tests
// without modification. Table normalization and rate matching live in the
// rates subpackage; this package decides when rule sets are loaded,
// replaced, cached and queried.
//
// # Lifecycle
//
// A [Service] starts empty. [Service.Init] restores the last upload from the
// cache or, failing that, loads the default workbook:
//
//	svc := core.NewService(cache, core.Config{DefaultFile: "public/freight_data.xlsx"})
//	if err := svc.Init(ctx); err != nil {
//	    return err
//	}
//
// [Service.LoadUpload] replaces the current rule set with an uploaded
// workbook and caches it; [Service.Reset] drops the cached upload and goes
// back to the default file.
//
// # Concurrency
//
// Queries read an immutable rule set through an atomic pointer and never
// block on loads. Each load holds one lock from opening the workbook until
// the new rule set is swapped in, so the last load to start its decode is
// the one left in place. Uploads are also bounded by an [UploadLimiter], and
// concurrent default loads are coalesced.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each error category has a code for support reference:
//
//   - RATE001-RATE003: no match, no data, invalid query
//   - FILE001-FILE005: size, format, missing or empty file
//   - CACHE001-CACHE002: snapshot too large or corrupt
//   - UPL002-UPL005: upload slots, cancellation, timeouts
//   - DB004-DB006: database connectivity
package core
