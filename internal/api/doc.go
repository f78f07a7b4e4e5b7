// Package api provides the backup engine REST API.
//
//	@title			Backhaul API
//	@version		1.0
//	@description	Agent, plan and execution management for the rsync backup engine
//	@BasePath		/api/v1
package api
