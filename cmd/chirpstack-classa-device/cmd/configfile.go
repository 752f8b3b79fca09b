package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}

# Log in JSON format.
log_json={{ .General.LogJSON }}

# Log to syslog.
#
# When set to true, log messages are being written to syslog.
log_to_syslog={{ .General.LogToSyslog }}


# Redis settings
#
# Redis holds the persisted device context, the uplink queue and the
# frame-log.
[redis]
# Server address or addresses.
#
# Set multiple addresses when connecting to a cluster.
servers=[{{ range $index, $elm := .Redis.Servers }}
  "{{ $elm }}",{{ end }}
]

# Password.
#
# Set the password when connecting to Redis requires password authentication.
password="{{ .Redis.Password }}"

# Database index.
#
# By default, this can be a number between 0-15.
database={{ .Redis.Database }}

# Redis Cluster.
#
# Set this to true when the provided URLs are pointing to a Redis Cluster
# instance.
cluster={{ .Redis.Cluster }}

# Master name.
#
# Set the master name when the provided URLs are pointing to a Redis Sentinel
# instance.
master_name="{{ .Redis.MasterName }}"

# Connection pool size.
#
# Default (when set to 0) is 10 connections per every CPU.
pool_size={{ .Redis.PoolSize }}

# TLS enabled.
tls_enabled={{ .Redis.TLSEnabled }}

# Key prefix.
#
# A key prefix can be used to avoid key collisions when multiple devices
# share the same Redis database.
key_prefix="{{ .Redis.KeyPrefix }}"


# Device settings.
[device]
# Device EUI (HEX encoded).
dev_eui="{{ .Device.DevEUIString }}"

# Join EUI (HEX encoded).
join_eui="{{ .Device.JoinEUIString }}"

# Activation.
#
# Valid options are:
#   * otaa: over-the-air activation (join)
#   * abp: activation by personalization
activation="{{ .Device.Activation }}"

# Public network.
public_network={{ .Device.PublicNetwork }}

# Enable ADR after activation.
adr={{ .Device.ADR }}

# Max receive-window timing error (ms).
max_rx_timing_error={{ .Device.MaxRXTimingError }}

# Default data-rate.
#
# Data-rate used for joining and for the first uplinks. When set to -1, the
# lowest enabled LoRa data-rate of the band is used.
default_data_rate={{ .Device.DefaultDataRate }}

# Battery level reported to the network (0: external power, 1-254: level,
# 255: unknown).
battery_level={{ .Device.BatteryLevel }}

# Max message size.
#
# Downlinks larger than this size are dropped.
max_message_size={{ .Device.MaxMessageSize }}

# Response queue size.
response_queue_size={{ .Device.ResponseQueueSize }}

# Event queue size.
#
# Events are dropped (and counted) when the queue is full.
event_queue_size={{ .Device.EventQueueSize }}

# Response push timeout.
#
# The time the engine callback waits for the response queue to have room,
# before the confirmation is dropped.
response_push_timeout="{{ .Device.ResponsePushTimeout }}"

  # Regional band.
  [device.band]
  # LoRaWAN band to use.
  #
  # Valid values are:
  # * AS923
  # * AU915
  # * CN470
  # * CN779
  # * EU433
  # * EU868
  # * IN865
  # * KR920
  # * RU864
  # * US915
  name="{{ .Device.Band.Name }}"

  # Enforce 400ms dwell time.
  dwell_time_400ms={{ .Device.Band.DwellTime400ms }}

  # Enforce repeater compatibility.
  repeater_compatible={{ .Device.Band.RepeaterCompatible }}

  # Over-the-air activation keys.
  [device.otaa]
  # Application key (HEX encoded).
  app_key="{{ .Device.OTAA.AppKeyString }}"

  # Network key (HEX encoded), LoRaWAN 1.1 only.
  nwk_key="{{ .Device.OTAA.NwkKeyString }}"

  # Activation by personalization.
  [device.abp]
  # LoRaWAN version (1.0.x).
  lorawan_version="{{ .Device.ABP.LoRaWANVersion }}"

  # Network identifier (NetID, 3 bytes) encoded as HEX (e.g. 010203).
  net_id="{{ .Device.ABP.NetIDString }}"

  # Device address (HEX encoded).
  dev_addr="{{ .Device.ABP.DevAddrString }}"

  # Application session key (HEX encoded).
  app_s_key="{{ .Device.ABP.AppSKeyString }}"

  # Network session encryption key (HEX encoded).
  nwk_s_enc_key="{{ .Device.ABP.NwkSEncKeyString }}"


# Join settings.
[join]
# Max join attempts.
max_attempts={{ .Join.MaxAttempts }}

# Interval between failed join attempts.
retry_interval="{{ .Join.RetryInterval }}"

# Random jitter (+/-) applied to the retry interval.
retry_jitter="{{ .Join.RetryJitter }}"


# Uplink settings.
[uplink]
# Max number of confirmed uplinks that were not acknowledged by the network,
# before the send is considered failed.
max_confirm_retries={{ .Uplink.MaxConfirmRetries }}


# Class-A loop settings.
[class_a]
# FPort of the default uplink.
f_port={{ .ClassA.FPort }}

# Payload of the default uplink (HEX encoded).
#
# The default uplink is sent when the uplink queue is empty.
payload="{{ .ClassA.PayloadString }}"

# Send the default uplink as confirmed uplink.
confirmed={{ .ClassA.Confirmed }}

# Interval between two uplinks.
tx_interval="{{ .ClassA.TXInterval }}"

# Random jitter (+/-) applied to the uplink interval.
tx_jitter="{{ .ClassA.TXJitter }}"

# Time to wait for network events after an uplink.
receive_window="{{ .ClassA.ReceiveWindow }}"

# Pending downlink flush policy.
#
# When the network signals more downlink data, an empty uplink is sent to
# fetch it. Valid options are:
#   * immediate: send right away
#   * delayed: wait pending_flush_delay first
pending_flush_policy="{{ .ClassA.PendingFlushPolicy }}"

# Delay before the flush uplink (delayed policy only).
pending_flush_delay="{{ .ClassA.PendingFlushDelay }}"

# Send the flush uplink as confirmed uplink.
pending_flush_confirmed={{ .ClassA.PendingFlushConfirmed }}

# Request a device-time sync every N cycles (0 = disabled).
device_time_sync_cycles={{ .ClassA.DeviceTimeSyncCycles }}

# Request a link-check every N cycles (0 = disabled).
link_check_cycles={{ .ClassA.LinkCheckCycles }}

# Max length of the uplink queue.
uplink_queue_max_length={{ .ClassA.UplinkQueueMaxLength }}


# MAC engine settings.
[engine]
# Engine type.
#
# Valid options are:
#   * simulator
type="{{ .Engine.Type }}"

  # Simulator engine.
  #
  # The simulator accepts joins and uplinks without a radio, it enforces the
  # regional duty-cycle and the receive-window timing.
  [engine.simulator]
  # Network identifier (NetID, 3 bytes) encoded as HEX (e.g. 010203).
  net_id="{{ .Engine.Simulator.NetIDString }}"

  # Duty-cycle (e.g. 0.01 for 1%), 0 disables the duty-cycle enforcement.
  duty_cycle={{ .Engine.Simulator.DutyCycle }}

  # Number of join-requests rejected before a join is accepted.
  join_fail_count={{ .Engine.Simulator.JoinFailCount }}

  # Echo every uplink payload as downlink.
  echo_uplinks={{ .Engine.Simulator.EchoUplinks }}

  # Demodulation margin and gateway count reported in link-check answers.
  demod_margin={{ .Engine.Simulator.DemodMargin }}
  gateway_count={{ .Engine.Simulator.GatewayCount }}

  # Persist the device context in Redis.
  #
  # When enabled, the device session survives a restart.
  persist_context={{ .Engine.Simulator.PersistContext }}


# Application integration.
[integration]
# Integration type.
#
# Valid options are:
#   * mqtt
#   * amqp
#   * nats
#   * "" (disabled)
type="{{ .Integration.Type }}"

  # MQTT integration.
  [integration.mqtt]
  # Event topic template.
  #
  # Use:
  #   * "{{ "{{ .DevEUI }}" }}" as an substitution for the device EUI
  #   * "{{ "{{ .EventType }}" }}" as an substitution for the event type
  event_topic_template="{{ .Integration.MQTT.EventTopicTemplate }}"

  # Command topic template.
  #
  # Use:
  #   * "{{ "{{ .DevEUI }}" }}" as an substitution for the device EUI
  #   * "{{ "{{ .CommandType }}" }}" as an substitution for the command type
  command_topic_template="{{ .Integration.MQTT.CommandTopicTemplate }}"

  # MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
  server="{{ .Integration.MQTT.Server }}"

  # Connect with the given username (optional)
  username="{{ .Integration.MQTT.Username }}"

  # Connect with the given password (optional)
  password="{{ .Integration.MQTT.Password }}"

  # Maximum interval that will be waited between reconnection attempts when connection is lost.
  max_reconnect_interval="{{ .Integration.MQTT.MaxReconnectInterval }}"

  # Quality of service level
  #
  # 0: at most once
  # 1: at least once
  # 2: exactly once
  qos={{ .Integration.MQTT.QOS }}

  # Clean session
  clean_session={{ .Integration.MQTT.CleanSession }}

  # Client ID
  #
  # When left blank, a random id will be generated. This requires clean_session=true.
  client_id="{{ .Integration.MQTT.ClientID }}"

  # CA certificate file (optional)
  ca_cert="{{ .Integration.MQTT.CACert }}"

  # TLS certificate file (optional)
  tls_cert="{{ .Integration.MQTT.TLSCert }}"

  # TLS key file (optional)
  tls_key="{{ .Integration.MQTT.TLSKey }}"

  # AMQP / RabbitMQ integration.
  [integration.amqp]
  # Server URL.
  url="{{ .Integration.AMQP.URL }}"

  # Event routing-key template.
  event_routing_key_template="{{ .Integration.AMQP.EventRoutingKeyTemplate }}"

  # Command queue name.
  #
  # The queue is declared and bound to the amq.topic exchange.
  command_queue_name="{{ .Integration.AMQP.CommandQueueName }}"

  # Command routing-key template.
  command_routing_key_template="{{ .Integration.AMQP.CommandRoutingKeyTemplate }}"

  # NATS integration.
  [integration.nats]
  # Server URL.
  url="{{ .Integration.NATS.URL }}"

  # Connect with the given username and password (optional).
  username="{{ .Integration.NATS.Username }}"
  password="{{ .Integration.NATS.Password }}"

  # Time to wait between reconnect attempts.
  reconnect_interval="{{ .Integration.NATS.ReconnectInterval }}"

  # Max reconnect attempts (-1 = unlimited).
  max_reconnects={{ .Integration.NATS.MaxReconnects }}

  # Event subject template.
  event_subject_template="{{ .Integration.NATS.EventSubjectTemplate }}"

  # Command subject template.
  command_subject_template="{{ .Integration.NATS.CommandSubjectTemplate }}"


# Monitoring settings.
[monitoring]
# IP:port to bind the monitoring endpoint to.
#
# When left blank, the monitoring endpoint will be disabled.
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set to true, Prometheus metrics will be served at '/metrics'.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Healthcheck endpoint.
#
# When set to true, the healthcheck endpoint will be served at '/health'.
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}

# Max frame-log history.
#
# The number of frame-log entries kept in Redis. Set to 0 to disable.
frame_log_max_history={{ .Monitoring.FrameLogMaxHistory }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the ChirpStack Class-A Device configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
