package common

import "github.com/asticode/go-astits"

type ServiceInfo struct {
	ServiceID    uint16 `json:"serviceId"`
	ServiceName  string `json:"serviceName,omitempty"`
	ProviderName string `json:"providerName,omitempty"`
}

type SdtInfo struct {
	Services []ServiceInfo `json:"SDT"`
}

// ToSdtInfo lists the services of an SDT. Services without a service
// descriptor keep their ID only.
func ToSdtInfo(sdt *astits.SDTData) SdtInfo {
	info := SdtInfo{Services: make([]ServiceInfo, 0, len(sdt.Services))}
	for _, s := range sdt.Services {
		svc := ServiceInfo{ServiceID: s.ServiceID}
		for _, d := range s.Descriptors {
			if d.Tag == astits.DescriptorTagService && d.Service != nil {
				svc.ServiceName = string(d.Service.Name)
				svc.ProviderName = string(d.Service.Provider)
				break
			}
		}
		info.Services = append(info.Services, svc)
	}
	return info
}
