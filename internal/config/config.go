package config

import (
	"time"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

// Version defines the ChirpStack Class-A Device version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogJSON     bool `mapstructure:"log_json"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Redis struct {
		URL        string   `mapstructure:"url"` // deprecated
		Servers    []string `mapstructure:"servers"`
		Cluster    bool     `mapstructure:"cluster"`
		MasterName string   `mapstructure:"master_name"`
		PoolSize   int      `mapstructure:"pool_size"`
		Password   string   `mapstructure:"password"`
		Database   int      `mapstructure:"database"`
		TLSEnabled bool     `mapstructure:"tls_enabled"`
		KeyPrefix  string   `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`

	Device struct {
		DevEUI        lorawan.EUI64 `mapstructure:"-"`
		DevEUIString  string        `mapstructure:"dev_eui"`
		JoinEUI       lorawan.EUI64 `mapstructure:"-"`
		JoinEUIString string        `mapstructure:"join_eui"`

		Activation       string `mapstructure:"activation"`
		PublicNetwork    bool   `mapstructure:"public_network"`
		ADR              bool   `mapstructure:"adr"`
		MaxRXTimingError uint32 `mapstructure:"max_rx_timing_error"`
		DefaultDataRate  int    `mapstructure:"default_data_rate"`
		BatteryLevel     uint8  `mapstructure:"battery_level"`

		MaxMessageSize      int           `mapstructure:"max_message_size"`
		ResponseQueueSize   int           `mapstructure:"response_queue_size"`
		EventQueueSize      int           `mapstructure:"event_queue_size"`
		ResponsePushTimeout time.Duration `mapstructure:"response_push_timeout"`

		Band struct {
			Name               band.Name `mapstructure:"name"`
			RepeaterCompatible bool      `mapstructure:"repeater_compatible"`
			DwellTime400ms     bool      `mapstructure:"dwell_time_400ms"`
		} `mapstructure:"band"`

		OTAA struct {
			AppKey       lorawan.AES128Key `mapstructure:"-"`
			AppKeyString string            `mapstructure:"app_key"`
			NwkKey       lorawan.AES128Key `mapstructure:"-"`
			NwkKeyString string            `mapstructure:"nwk_key"`
		} `mapstructure:"otaa"`

		ABP struct {
			LoRaWANVersion   string            `mapstructure:"lorawan_version"`
			NetID            lorawan.NetID     `mapstructure:"-"`
			NetIDString      string            `mapstructure:"net_id"`
			DevAddr          lorawan.DevAddr   `mapstructure:"-"`
			DevAddrString    string            `mapstructure:"dev_addr"`
			AppSKey          lorawan.AES128Key `mapstructure:"-"`
			AppSKeyString    string            `mapstructure:"app_s_key"`
			NwkSEncKey       lorawan.AES128Key `mapstructure:"-"`
			NwkSEncKeyString string            `mapstructure:"nwk_s_enc_key"`
		} `mapstructure:"abp"`
	} `mapstructure:"device"`

	Join struct {
		MaxAttempts   int           `mapstructure:"max_attempts"`
		RetryInterval time.Duration `mapstructure:"retry_interval"`
		RetryJitter   time.Duration `mapstructure:"retry_jitter"`
	} `mapstructure:"join"`

	Uplink struct {
		MaxConfirmRetries int `mapstructure:"max_confirm_retries"`
	} `mapstructure:"uplink"`

	ClassA struct {
		FPort                 uint8         `mapstructure:"f_port"`
		Payload               []byte        `mapstructure:"-"`
		PayloadString         string        `mapstructure:"payload"`
		Confirmed             bool          `mapstructure:"confirmed"`
		TXInterval            time.Duration `mapstructure:"tx_interval"`
		TXJitter              time.Duration `mapstructure:"tx_jitter"`
		ReceiveWindow         time.Duration `mapstructure:"receive_window"`
		PendingFlushPolicy    string        `mapstructure:"pending_flush_policy"`
		PendingFlushDelay     time.Duration `mapstructure:"pending_flush_delay"`
		PendingFlushConfirmed bool          `mapstructure:"pending_flush_confirmed"`
		DeviceTimeSyncCycles  int           `mapstructure:"device_time_sync_cycles"`
		LinkCheckCycles       int           `mapstructure:"link_check_cycles"`
		UplinkQueueMaxLength  int64         `mapstructure:"uplink_queue_max_length"`
	} `mapstructure:"class_a"`

	Engine struct {
		Type string `mapstructure:"type"`

		Simulator struct {
			NetID          lorawan.NetID `mapstructure:"-"`
			NetIDString    string        `mapstructure:"net_id"`
			DutyCycle      float64       `mapstructure:"duty_cycle"`
			JoinFailCount  int           `mapstructure:"join_fail_count"`
			EchoUplinks    bool          `mapstructure:"echo_uplinks"`
			DemodMargin    uint8         `mapstructure:"demod_margin"`
			GatewayCount   uint8         `mapstructure:"gateway_count"`
			PersistContext bool          `mapstructure:"persist_context"`
		} `mapstructure:"simulator"`
	} `mapstructure:"engine"`

	Integration struct {
		Type string `mapstructure:"type"`

		MQTT struct {
			Server               string        `mapstructure:"server"`
			Username             string        `mapstructure:"username"`
			Password             string        `mapstructure:"password"`
			QOS                  uint8         `mapstructure:"qos"`
			CleanSession         bool          `mapstructure:"clean_session"`
			ClientID             string        `mapstructure:"client_id"`
			CACert               string        `mapstructure:"ca_cert"`
			TLSCert              string        `mapstructure:"tls_cert"`
			TLSKey               string        `mapstructure:"tls_key"`
			MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
			EventTopicTemplate   string        `mapstructure:"event_topic_template"`
			CommandTopicTemplate string        `mapstructure:"command_topic_template"`
		} `mapstructure:"mqtt"`

		AMQP struct {
			URL                       string `mapstructure:"url"`
			EventRoutingKeyTemplate   string `mapstructure:"event_routing_key_template"`
			CommandQueueName          string `mapstructure:"command_queue_name"`
			CommandRoutingKeyTemplate string `mapstructure:"command_routing_key_template"`
		} `mapstructure:"amqp"`

		NATS struct {
			URL                    string        `mapstructure:"url"`
			Username               string        `mapstructure:"username"`
			Password               string        `mapstructure:"password"`
			ReconnectInterval      time.Duration `mapstructure:"reconnect_interval"`
			MaxReconnects          int           `mapstructure:"max_reconnects"`
			EventSubjectTemplate   string        `mapstructure:"event_subject_template"`
			CommandSubjectTemplate string        `mapstructure:"command_subject_template"`
		} `mapstructure:"nats"`
	} `mapstructure:"integration"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
		FrameLogMaxHistory  int64  `mapstructure:"frame_log_max_history"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config

// Get returns the configuration.
func Get() *Config {
	return &C
}

// Set sets the configuration.
func Set(c Config) {
	C = c
}
