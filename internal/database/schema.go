package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255),
    first_name VARCHAR(255),
    last_name VARCHAR(255),
    language VARCHAR(8) NOT NULL DEFAULT 'en',
    selected_model VARCHAR(64) NOT NULL DEFAULT 'GPT-4o mini',
    is_admin TINYINT(1) NOT NULL DEFAULT 0,
    wallet_balance BIGINT NOT NULL DEFAULT 0,
    free_requests_left INT NOT NULL DEFAULT 0,
    free_expiry DATE,
    premium_expiry DATE,
    premium_daily_limit INT NOT NULL DEFAULT 0,
    premium_used_today INT NOT NULL DEFAULT 0,
    last_premium_reset DATE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_packages (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    category VARCHAR(16) NOT NULL,
    credits_total INT NOT NULL,
    credits_left INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_user_category (user_id, category),
    FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS usage_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    model_name VARCHAR(64) NOT NULL,
    request_type VARCHAR(16) NOT NULL,
    cost INT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_user (user_id),
    FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS api_keys (
    service_name VARCHAR(64) PRIMARY KEY,
    secret_value TEXT NOT NULL,
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    added_by BIGINT NOT NULL,
    added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ledger_operations (
    op_key VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
