package api

import "github.com/cloudemu/cloudemu/internal/pipeline"

// Declarative per-endpoint request schemas. Services re-validate domain
// rules (catalog membership, CIDR overlap); these gate shape at the
// handler boundary so malformed input never reaches a service.
var (
	createProjectSchema = pipeline.Schema{Fields: []pipeline.FieldRule{
		{Name: "projectId", Required: true, Pattern: pipeline.PatternProjectID, MaxLen: 30},
		{Name: "displayName", MaxLen: 100},
	}}

	createBucketSchema = pipeline.Schema{Fields: []pipeline.FieldRule{
		{Name: "project", Required: true, Pattern: pipeline.PatternProjectID, MaxLen: 30},
		{Name: "name", Required: true, Pattern: pipeline.PatternBucketName, MinLen: 2, MaxLen: 63},
		{Name: "acl", Enum: []string{"private", "publicRead"}},
	}}

	runInstanceSchema = pipeline.Schema{Fields: []pipeline.FieldRule{
		{Name: "name", Required: true, Pattern: pipeline.PatternInstanceName, MaxLen: 63},
		{Name: "zone", Required: true, Pattern: pipeline.PatternZone},
	}}

	createSubnetSchema = pipeline.Schema{Fields: []pipeline.FieldRule{
		{Name: "name", Required: true, Pattern: pipeline.PatternInstanceName, MaxLen: 63},
		{Name: "region", Required: true, Pattern: pipeline.PatternRegion},
		{Name: "ipCidrRange", Required: true, Pattern: pipeline.PatternCIDR},
	}}

	createServiceAccountSchema = pipeline.Schema{Fields: []pipeline.FieldRule{
		{Name: "accountId", Required: true, Pattern: pipeline.PatternInstanceName, MinLen: 6, MaxLen: 30},
		{Name: "displayName", MaxLen: 100},
	}}
)
