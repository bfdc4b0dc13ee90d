// Package factory builds pluggable modules, such as metrics sinks, from their
// configuration. A module is selected by a type name and receives the raw
// settings found under its conf key:
//
//	metrics:
//	  sinks:
//	    - type: influx
//	      conf:
//	        url: http://localhost:8086
//	        bucket: solarcharge
//	        timeout: 3s
//
// Factories decode the settings with Decode and return the implementation:
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	_ = reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//		var c InfluxConfig
//		if err := factory.Decode(conf, &c); err != nil {
//			return nil, err
//		}
//		return NewInfluxSink(c), nil
//	})
package factory
