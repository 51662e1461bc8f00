package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `fabtrack tracks modular construction: production units, their activities, inspections and panel logistics.

Core concepts:
- Unit: one box/module moving through the factory. Its progress and status are derived from its activities.
- Activity: a catalog step instantiated on a unit. NotStarted -> InProgress -> Completed, with OnHold and Blocked side states.
- Dependency: predecessor -> dependent edge (FinishToStart or StartToStart) with a lag in days. The graph is acyclic.
- Inspection: a checklist revision opened on a checkpoint activity. Approval needs every item pass or na.
- Panel: a barcoded asset. Location only moves forward; Installed needs both approvals.

Rules of engagement:
1) Read first: get_unit (by id or tag), graph_view, get_panel, list_anomalies.
2) Mutate with one call per transition. A rejected call names the violated rule; fix that and retry.
3) CONCURRENT_MODIFICATION means someone else changed the entity. Re-read before retrying.
4) audit_trail and verify_audit_chain show who changed what and prove the log is intact.

Docs:
- fabtrack://docs/index
- fabtrack://docs/errors
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "fabtrack://docs/index",
		Name:        "docs_index",
		Title:       "fabtrack docs index",
		Description: "Entry point: workflows for units, inspections and panels.",
		Content: `# fabtrack

## Unit workflow

1. create_unit(tag, type) instantiates the catalog plan for the type.
2. start_activity / update_progress / complete_activity per activity. Dependencies are enforced.
3. reopen_activity(reason) on a completed activity blocks every started dependent.

## Inspection workflow

1. start_activity on the checkpoint activity, then open_inspection(activity id).
2. start_review, then resolve_checklist_item for each item.
3. approve_inspection, or reject_inspection(reason). A rejection blocks the activity until open_inspection is called again.
4. complete_activity on the checkpoint once the latest revision is approved.

## Panel workflow

1. register_panel(barcode, unit). Earlier scans of the barcode are reconciled.
2. decide_approval stage 1, then stage 2.
3. record_scan for each physical scan. Out-of-order or regressing scans raise anomalies instead of moving the panel.
4. confirm_anomaly or dismiss_anomaly to resolve them.
`,
	},
	{
		URI:         "fabtrack://docs/errors",
		Name:        "docs_errors",
		Title:       "Error codes",
		Description: "Stable error codes and what to do about each.",
		Content: `# Error codes

- DEPENDENCY_NOT_SATISFIED: details.blockers names each predecessor and why it blocks.
- CYCLIC_DEPENDENCY: details.path is the cycle the new edge would close.
- CHECKLIST_NOT_CLEAR: details.failing and details.unresolved list the items.
- VALIDATION: details.field names the bad input.
- NOT_FOUND: the id does not exist.
- INVALID_TRANSITION: details has entity, from and to.
- PERMISSION_DENIED: details.permission is the missing key.
- CONCURRENT_MODIFICATION: retry after re-reading.
- UNRESOLVED_REFERENCE: register the panel first.
- PERSISTENCE: storage was unavailable; nothing was written.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
