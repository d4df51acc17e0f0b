package utils

import (
	"fmt"
	"net"
	"strings"
)

// GetLocalIP 获取本机IPv4地址，优先选择常见物理网卡上的私有地址
func GetLocalIP() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	// 优先选择的接口名称（按优先级排序）
	preferredInterfaces := []string{"wlan", "wifi", "wireless", "ethernet", "eth", "en"}
	for _, preferred := range preferredInterfaces {
		for _, iface := range interfaces {
			if !strings.Contains(strings.ToLower(iface.Name), preferred) {
				continue
			}
			if ip := privateIPv4(iface); ip != "" {
				return ip, nil
			}
		}
	}

	// 没找到优先接口时遍历其余接口，跳过回环和虚拟网卡
	for _, iface := range interfaces {
		name := strings.ToLower(iface.Name)
		if iface.Flags&net.FlagLoopback != 0 || strings.Contains(name, "vmware") || strings.Contains(name, "virtual") {
			continue
		}
		if ip := privateIPv4(iface); ip != "" {
			return ip, nil
		}
	}

	// 最后尝试所有IPv4地址
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}

	return "", fmt.Errorf("未找到有效的IP地址")
}

func privateIPv4(iface net.Interface) string {
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil && ipnet.IP.IsPrivate() {
			return ipnet.IP.String()
		}
	}
	return ""
}
