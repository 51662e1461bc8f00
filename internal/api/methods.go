package api

// Method describes one callable operation and its input schema.
type Method struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	ReadOnly    bool           `json:"read_only"`
	InputSchema map[string]any `json:"input_schema"`
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func idOnly(description string) map[string]any {
	return object(map[string]any{"id": str(description)}, "id")
}

func withReason(idDescription, reasonDescription string) map[string]any {
	return object(map[string]any{
		"id":     str(idDescription),
		"reason": str(reasonDescription),
	}, "id", "reason")
}

var auditSchema = object(map[string]any{
	"entity_type": enum("Entity type", "unit", "activity", "dependency", "inspection", "panel", "scan", "anomaly", "manifest"),
	"entity_id":   str("Entity ID"),
}, "entity_type", "entity_id")

// Methods lists every method Handle accepts.
func Methods() []Method {
	return []Method{
		// Units
		{
			Name:        "create_unit",
			Description: "Register a production unit and instantiate the catalog activity plan for its type",
			InputSchema: object(map[string]any{
				"tag":        str("Unique unit tag, e.g. B-1042"),
				"type":       str("Unit type used to pick the activity plan"),
				"attributes": map[string]any{"type": "object", "description": "Free-form attributes read by plan rules", "additionalProperties": map[string]any{"type": "string"}},
				"location":   str("Physical location reference"),
			}, "tag", "type"),
		},
		{
			Name:        "add_activity",
			Description: "Append a catalog activity to an existing unit",
			InputSchema: object(map[string]any{
				"unit_id": str("Unit ID"),
				"code":    str("Catalog activity code"),
			}, "unit_id", "code"),
		},
		{
			Name:        "move_unit",
			Description: "Update the physical location of a unit",
			InputSchema: object(map[string]any{
				"id":       str("Unit ID"),
				"location": str("New location reference"),
			}, "id", "location"),
		},
		{
			Name:        "recompute_unit",
			Description: "Recompute the unit's derived progress, status and completion forecast",
			InputSchema: idOnly("Unit ID"),
		},

		// Activities
		{
			Name:        "start_activity",
			Description: "Start an activity once its predecessors allow it",
			InputSchema: idOnly("Activity instance ID"),
		},
		{
			Name:        "update_progress",
			Description: "Raise an in-progress activity's percent complete (never decreases)",
			InputSchema: object(map[string]any{
				"id":      str("Activity instance ID"),
				"percent": map[string]any{"type": []string{"number", "string"}, "description": "Percent complete, 0 to 100"},
			}, "id", "percent"),
		},
		{
			Name:        "correct_progress",
			Description: "Set an activity's percent complete to a lower value with a reason",
			InputSchema: object(map[string]any{
				"id":      str("Activity instance ID"),
				"percent": map[string]any{"type": []string{"number", "string"}, "description": "Corrected percent complete"},
				"reason":  str("Why the progress is corrected"),
			}, "id", "percent", "reason"),
		},
		{
			Name:        "hold_activity",
			Description: "Put an in-progress activity on hold",
			InputSchema: withReason("Activity instance ID", "Why work stopped"),
		},
		{
			Name:        "resume_activity",
			Description: "Resume an activity that is on hold or blocked",
			InputSchema: idOnly("Activity instance ID"),
		},
		{
			Name:        "complete_activity",
			Description: "Complete an activity; inspection checkpoints need an approved inspection",
			InputSchema: idOnly("Activity instance ID"),
		},
		{
			Name:        "reopen_activity",
			Description: "Reopen a completed activity and block every started dependent",
			InputSchema: withReason("Activity instance ID", "Why the activity is reopened"),
		},
		{
			Name:        "assign_activity",
			Description: "Assign an activity to a team and optionally a member",
			InputSchema: object(map[string]any{
				"id":     str("Activity instance ID"),
				"team":   str("Team"),
				"member": str("Team member"),
			}, "id", "team"),
		},

		// Dependencies
		{
			Name:        "add_dependency",
			Description: "Add a dependency edge between two activities of the same unit",
			InputSchema: object(map[string]any{
				"predecessor_id": str("Predecessor activity instance ID"),
				"dependent_id":   str("Dependent activity instance ID"),
				"type":           enum("Dependency type", "FinishToStart", "StartToStart"),
				"lag_days":       integer("Non-negative lag in days"),
			}, "predecessor_id", "dependent_id"),
		},
		{
			Name:        "remove_dependency",
			Description: "Remove a dependency edge",
			InputSchema: idOnly("Dependency edge ID"),
		},

		// Inspections
		{
			Name:        "open_inspection",
			Description: "Open an inspection revision for a checkpoint activity, snapshotting its checklist",
			InputSchema: idOnly("Activity instance ID"),
		},
		{
			Name:        "start_review",
			Description: "Move an open inspection into review",
			InputSchema: idOnly("Inspection record ID"),
		},
		{
			Name:        "resolve_checklist_item",
			Description: "Mark a checklist item pass, fail or na",
			InputSchema: object(map[string]any{
				"record_id": str("Inspection record ID"),
				"item_id":   str("Checklist item ID"),
				"state":     enum("Item result", "pass", "fail", "na"),
				"note":      str("Inspector note"),
			}, "record_id", "item_id", "state"),
		},
		{
			Name:        "approve_inspection",
			Description: "Approve an inspection in review with no failing or unresolved items",
			InputSchema: idOnly("Inspection record ID"),
		},
		{
			Name:        "reject_inspection",
			Description: "Reject an inspection; the checkpoint activity is blocked until resubmission",
			InputSchema: withReason("Inspection record ID", "Rejection reason"),
		},

		// Logistics
		{
			Name:        "register_panel",
			Description: "Register a panel barcode against a unit and reconcile earlier unknown scans",
			InputSchema: object(map[string]any{
				"barcode":    str("Panel barcode"),
				"unit_id":    str("Owning unit ID"),
				"panel_type": str("Panel type"),
			}, "barcode", "unit_id"),
		},
		{
			Name:        "record_scan",
			Description: "Ingest a barcode scan; duplicates inside the dedup window return the stored event",
			InputSchema: object(map[string]any{
				"barcode":   str("Scanned barcode"),
				"scan_type": enum("Scan type", "dispatch", "transit", "delivery", "install", "check"),
				"location":  str("Scanner location reference"),
				"geo": object(map[string]any{
					"lat": map[string]any{"type": "number"},
					"lng": map[string]any{"type": "number"},
				}),
				"timestamp": str("Client timestamp (RFC 3339)"),
			}, "barcode", "scan_type", "timestamp"),
		},
		{
			Name:        "decide_approval",
			Description: "Record a first or second stage panel approval decision",
			InputSchema: object(map[string]any{
				"panel_id": str("Panel ID"),
				"stage":    map[string]any{"type": "integer", "enum": []int{1, 2}, "description": "Approval stage"},
				"decision": enum("Decision", "Approved", "Rejected"),
				"notes":    str("Reviewer notes"),
			}, "panel_id", "stage", "decision"),
		},
		{
			Name:        "resubmit_panel",
			Description: "Reset a rejected panel's approvals so it can be decided again",
			InputSchema: idOnly("Panel ID"),
		},
		{
			Name:        "advance_location",
			Description: "Move a panel forward in its location sequence",
			InputSchema: object(map[string]any{
				"panel_id": str("Panel ID"),
				"status":   enum("Target location status", "AtFactory", "Dispatched", "InTransit", "Delivered", "Installed"),
				"reason":   str("Operator note"),
			}, "panel_id", "status"),
		},
		{
			Name:        "confirm_anomaly",
			Description: "Confirm a held scan anomaly and apply its target location",
			InputSchema: object(map[string]any{
				"id":   str("Anomaly ID"),
				"note": str("Operator note"),
			}, "id"),
		},
		{
			Name:        "dismiss_anomaly",
			Description: "Dismiss a scan anomaly without changing the panel",
			InputSchema: withReason("Anomaly ID", "Why the anomaly is dismissed"),
		},
		{
			Name:        "create_manifest",
			Description: "Create a delivery manifest for registered panels",
			InputSchema: object(map[string]any{
				"carrier":       str("Carrier"),
				"vehicle":       str("Vehicle reference"),
				"delivery_date": str("Planned delivery date (RFC 3339)"),
				"barcodes":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			}, "carrier", "barcodes"),
		},

		// Projections
		{
			Name:        "get_unit",
			Description: "Get a unit with its activities and panels, by id or tag",
			ReadOnly:    true,
			InputSchema: object(map[string]any{
				"id":  str("Unit ID"),
				"tag": str("Unit tag (when id is omitted)"),
			}),
		},
		{
			Name:        "list_units",
			Description: "List units, optionally filtered by status and type",
			ReadOnly:    true,
			InputSchema: object(map[string]any{
				"status": enum("Unit status", "NotStarted", "InProgress", "OnHold", "Completed"),
				"type":   str("Unit type"),
				"limit":  integer("Maximum number of results"),
				"offset": integer("Offset for pagination"),
			}),
		},
		{
			Name:        "get_activity",
			Description: "Get one activity instance",
			ReadOnly:    true,
			InputSchema: idOnly("Activity instance ID"),
		},
		{
			Name:        "graph_view",
			Description: "Get the dependency graph of a unit (nodes are activities, edges carry type and lag)",
			ReadOnly:    true,
			InputSchema: idOnly("Unit ID"),
		},
		{
			Name:        "get_inspection",
			Description: "Get an inspection record with its checklist",
			ReadOnly:    true,
			InputSchema: idOnly("Inspection record ID"),
		},
		{
			Name:        "list_inspections",
			Description: "List every inspection revision of an activity",
			ReadOnly:    true,
			InputSchema: object(map[string]any{"activity_id": str("Activity instance ID")}, "activity_id"),
		},
		{
			Name:        "get_panel",
			Description: "Get a panel and its scans, by id or barcode",
			ReadOnly:    true,
			InputSchema: idOnly("Panel ID or barcode"),
		},
		{
			Name:        "list_anomalies",
			Description: "List scan anomalies",
			ReadOnly:    true,
			InputSchema: object(map[string]any{
				"status":   enum("Anomaly status", "Open", "Confirmed", "Dismissed", "Reconciled"),
				"panel_id": str("Panel ID"),
				"barcode":  str("Barcode"),
				"limit":    integer("Maximum number of results"),
			}),
		},
		{
			Name:        "get_manifest",
			Description: "Get a delivery manifest",
			ReadOnly:    true,
			InputSchema: idOnly("Manifest ID"),
		},
		{
			Name:        "audit_trail",
			Description: "Get the ordered audit trail of an entity",
			ReadOnly:    true,
			InputSchema: auditSchema,
		},
		{
			Name:        "verify_audit_chain",
			Description: "Recompute an entity's audit hash chain and report the first broken link",
			ReadOnly:    true,
			InputSchema: auditSchema,
		},
	}
}
