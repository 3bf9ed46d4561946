package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create care_plans table
			CREATE TABLE care_plans (
				id UUID PRIMARY KEY,
				title VARCHAR(255) NOT NULL,
				patient_id VARCHAR(255) NOT NULL,
				episode_id VARCHAR(255),
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_care_plans_patient_id ON care_plans(patient_id);
			CREATE INDEX idx_care_plans_owner ON care_plans(owner);
			CREATE INDEX idx_care_plans_created_at ON care_plans(created_at);
			CREATE INDEX idx_care_plans_deleted_at ON care_plans(deleted_at);
		`,
		2: `
			-- Create care_plan_blocks table. Blocks keep their graph edges as
			-- JSONB id arrays; position preserves the flat collection order.
			CREATE TABLE care_plan_blocks (
				care_plan_id UUID NOT NULL REFERENCES care_plans(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				block_type VARCHAR(50) NOT NULL CHECK (block_type IN ('ACTION', 'CONDITION', 'WAIT')),
				payload JSONB NOT NULL DEFAULT '{}',
				parent_ids JSONB NOT NULL DEFAULT '[]',
				child_ids JSONB NOT NULL DEFAULT '[]',
				position INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (care_plan_id, id)
			);

			CREATE INDEX idx_care_plan_blocks_plan_id ON care_plan_blocks(care_plan_id);
			CREATE INDEX idx_care_plan_blocks_type ON care_plan_blocks(block_type);
		`,
	}
}
