package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'inactive')),
				trigger_event VARCHAR(100) NOT NULL,
				start_node_id VARCHAR(255) NOT NULL,
				variables JSONB,
				max_escalation_hops INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_trigger ON workflows(trigger_event, status);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				config JSONB DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				source_port VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				target_port VARCHAR(255) NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_connections_source ON workflow_connections(workflow_id, source_node_id, source_port);
		`,
		2: `
			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				document_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'waiting', 'completed', 'failed', 'cancelled')),
				current_node_id VARCHAR(255),
				waiting_on VARCHAR(50),
				context JSONB,
				frontier JSONB,
				failed_branches INT NOT NULL DEFAULT 0,
				failed_node_id VARCHAR(255),
				error TEXT,
				step_count INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_status ON workflow_runs(status, updated_at);
			CREATE INDEX idx_workflow_runs_document ON workflow_runs(document_id);

			CREATE TABLE workflow_timers (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				timer_type VARCHAR(50) NOT NULL DEFAULT 'delay',
				fire_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('waiting', 'fired', 'cancelled')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				fired_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_timers_due ON workflow_timers(status, fire_at);
			CREATE INDEX idx_workflow_timers_execution ON workflow_timers(execution_id);

			CREATE TABLE workflow_approval_tasks (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				document_id VARCHAR(255) NOT NULL,
				assigned_user_id VARCHAR(255) NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE,
				timeout_hours INT,
				escalate_to_user_id VARCHAR(255),
				escalate_after_hours INT,
				escalation_chain JSONB,
				escalation_count INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'escalated', 'approved', 'rejected', 'expired', 'cancelled')),
				decided_by VARCHAR(255),
				comment TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_approval_tasks_expiry ON workflow_approval_tasks(status, expires_at);
			CREATE INDEX idx_workflow_approval_tasks_user ON workflow_approval_tasks(assigned_user_id, status);
			CREATE INDEX idx_workflow_approval_tasks_execution ON workflow_approval_tasks(execution_id);

			CREATE TABLE workflow_approval_decisions (
				id VARCHAR(255) PRIMARY KEY,
				task_id VARCHAR(255) NOT NULL REFERENCES workflow_approval_tasks(id) ON DELETE CASCADE,
				user_id VARCHAR(255),
				action VARCHAR(50) NOT NULL,
				comment TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_approval_decisions_task ON workflow_approval_decisions(task_id, created_at);

			CREATE TABLE workflow_execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				port VARCHAR(255),
				message TEXT,
				output JSONB,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_execution_logs_execution ON workflow_execution_logs(execution_id, started_at);
		`,
		3: `
			CREATE TABLE documents (
				id VARCHAR(255) PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				original_filename TEXT NOT NULL DEFAULT '',
				file_path TEXT,
				storage_key TEXT,
				mime_type VARCHAR(255),
				content TEXT,
				ocr_text TEXT,
				ocr_error TEXT,
				thumbnail_path TEXT,
				page_count INT,
				summary TEXT,
				correspondent_id VARCHAR(255),
				document_type_id VARCHAR(255),
				storage_path_id VARCHAR(255),
				tags JSONB,
				is_indexed BOOLEAN NOT NULL DEFAULT false,
				indexed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_documents_pending ON documents(is_indexed, created_at);

			CREATE TABLE match_rules (
				id VARCHAR(255) PRIMARY KEY,
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('tag', 'correspondent', 'document_type', 'storage_path')),
				target_id VARCHAR(255) NOT NULL,
				algorithm VARCHAR(50) NOT NULL CHECK (algorithm IN ('any', 'all', 'exact', 'regex')),
				pattern TEXT NOT NULL,
				case_insensitive BOOLEAN NOT NULL DEFAULT false
			);
		`,
	}
}
