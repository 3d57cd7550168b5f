package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE applications (
				id TEXT PRIMARY KEY,
				name VARCHAR(64) NOT NULL UNIQUE,
				description VARCHAR(256) NOT NULL DEFAULT '',
				marketplace_id VARCHAR(10) NOT NULL DEFAULT '',
				owner VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_applications_owner ON applications(owner);
			CREATE INDEX idx_applications_marketplace_id ON applications(marketplace_id);

			CREATE TABLE app_instances (
				id TEXT PRIMARY KEY,
				name VARCHAR(64) NOT NULL UNIQUE,
				application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
				description VARCHAR(256) NOT NULL DEFAULT '',
				inputs JSONB NOT NULL DEFAULT '{}',
				hpc_inputs JSONB NOT NULL DEFAULT '{}',
				outputs JSONB NOT NULL DEFAULT '{}',
				owner VARCHAR(255) NOT NULL,
				status VARCHAR(20) NOT NULL DEFAULT 'prepared'
					CHECK (status IN ('prepared', 'pending', 'started', 'cancelling',
						'force_cancelling', 'cancelled', 'failed', 'terminated')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_app_instances_owner ON app_instances(owner);
			CREATE INDEX idx_app_instances_status ON app_instances(status);

			CREATE TABLE workflow_executions (
				id TEXT PRIMARY KEY,
				external_id VARCHAR(50) NOT NULL,
				instance_id TEXT NOT NULL REFERENCES app_instances(id) ON DELETE CASCADE,
				workflow VARCHAR(50) NOT NULL,
				owner VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflow_executions_instance_id ON workflow_executions(instance_id);

			CREATE TABLE instance_logs (
				id BIGSERIAL PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES app_instances(id) ON DELETE CASCADE,
				generated TIMESTAMP WITH TIME ZONE NOT NULL,
				message TEXT NOT NULL
			);

			CREATE INDEX idx_instance_logs_instance_id ON instance_logs(instance_id, id);
		`,
		2: `
			CREATE TABLE tunnels (
				id TEXT PRIMARY KEY,
				name VARCHAR(50) NOT NULL,
				owner VARCHAR(255) NOT NULL,
				host VARCHAR(50) NOT NULL,
				username VARCHAR(50) NOT NULL,
				private_key TEXT NOT NULL DEFAULT '',
				private_key_password TEXT NOT NULL DEFAULT '',
				password TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_tunnels_owner ON tunnels(owner);

			CREATE TABLE hpcs (
				id TEXT PRIMARY KEY,
				name VARCHAR(50) NOT NULL,
				owner VARCHAR(255) NOT NULL,
				host VARCHAR(50) NOT NULL,
				username VARCHAR(50) NOT NULL,
				private_key TEXT NOT NULL DEFAULT '',
				private_key_password TEXT NOT NULL DEFAULT '',
				password TEXT NOT NULL DEFAULT '',
				time_zone VARCHAR(20) NOT NULL,
				manager VARCHAR(5) NOT NULL DEFAULT 'SLURM',
				tunnel_id TEXT REFERENCES tunnels(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_hpcs_owner ON hpcs(owner);
		`,
		3: `
			CREATE TABLE datacatalogue_keys (
				owner VARCHAR(255) PRIMARY KEY,
				code TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}
